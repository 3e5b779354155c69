package pms

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const (
	syncByte1 = 0x42
	syncByte2 = 0x4D

	// FrameLenShort and FrameLenLong are the two legal values of the length
	// field: payload plus the 2 checksum bytes.
	FrameLenShort = 2*9 + 2
	FrameLenLong  = 2*13 + 2

	headerLen = 4
)

// Model selects how the ambiguous payload words at offsets 20 and 22 are
// interpreted.
type Model int

const (
	// ModelPMS5003 reports particle counts above 5.0 and 10 µm at offsets 20/22.
	ModelPMS5003 Model = iota
	// ModelPMS5003T reports temperature and humidity at offsets 20/22.
	ModelPMS5003T
	// ModelPMS5003S reports counts like ModelPMS5003 plus formaldehyde at 24.
	ModelPMS5003S
)

func (m Model) String() string {
	switch m {
	case ModelPMS5003:
		return "PMS5003"
	case ModelPMS5003T:
		return "PMS5003T"
	case ModelPMS5003S:
		return "PMS5003S"
	default:
		return "unknown"
	}
}

// ParseModel maps "PMS5003", "PMS5003T" or "PMS5003S", ignoring case.
func ParseModel(s string) (Model, error) {
	for _, m := range []Model{ModelPMS5003, ModelPMS5003T, ModelPMS5003S} {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return ModelPMS5003, errors.Errorf("pms: unknown model %q", s)
}

// Status of the most recent Feed call.
type Status int

const (
	StatusWaiting Status = iota
	StatusOK
)

// Reading is one decoded frame. Concentrations are µg/m³, counts are per 0.1 L.
type Reading struct {
	// Standard particle, CF=1.
	PM1SP  uint16
	PM25SP uint16
	PM10SP uint16

	// Atmospheric environment.
	PM1AE  uint16
	PM25AE uint16
	PM10AE uint16

	Count03  uint16
	Count05  uint16
	Count10  uint16
	Count25  uint16
	Count50  uint16
	Count100 uint16

	// HCHO is the formaldehyde concentration in mg/m³ for ModelPMS5003S.
	HCHO    float32
	HasHCHO bool

	// Temperature (°C) and Humidity (%) for ModelPMS5003T.
	Temperature float32
	Humidity    float32
	HasTempHum  bool
}

type state uint8

const (
	stateSync1 state = iota
	stateSync2
	stateLenHi
	stateLenLo
	statePayload
	stateChecksumHi
	stateChecksumLo
)

// Decoder is a byte-at-a-time PMS frame parser. It keeps parse state across
// calls so bytes can be fed as they arrive.
type Decoder struct {
	model Model

	state    state
	index    int
	length   int
	sum      uint16
	checksum uint16
	payload  [FrameLenLong - 2]byte

	status  Status
	reading Reading
	frames  uint64
}

// NewDecoder creates a decoder for the given sensor model.
func NewDecoder(model Model) *Decoder {
	return &Decoder{model: model}
}

// Model returns the configured sensor model.
func (d *Decoder) Model() Model {
	return d.model
}

// Index returns the parse cursor: bytes of the current frame consumed so far.
func (d *Decoder) Index() int {
	return d.index
}

// Status returns the outcome of the last Feed call.
func (d *Decoder) Status() Status {
	return d.status
}

// Reading returns the last successfully decoded frame.
func (d *Decoder) Reading() Reading {
	return d.reading
}

// Frames returns the number of valid frames decoded so far.
func (d *Decoder) Frames() uint64 {
	return d.frames
}

// Reset discards any partially parsed frame.
func (d *Decoder) Reset() {
	d.state = stateSync1
	d.index = 0
	d.sum = 0
}

// Feed consumes one byte. It returns true when the byte completed a frame with
// a valid checksum; Reading then holds the decoded values.
func (d *Decoder) Feed(b byte) bool {
	d.status = StatusWaiting

	switch d.state {
	case stateSync1:
		if b != syncByte1 {
			return false
		}
		d.sum = uint16(b)
		d.index = 1
		d.state = stateSync2

	case stateSync2:
		if b != syncByte2 {
			d.Reset()
			// The rejected byte may itself start a frame.
			return d.Feed(b)
		}
		d.sum += uint16(b)
		d.index++
		d.state = stateLenHi

	case stateLenHi:
		d.sum += uint16(b)
		d.length = int(b) << 8
		d.index++
		d.state = stateLenLo

	case stateLenLo:
		hi := byte(d.length >> 8)
		d.length |= int(b)
		if d.length != FrameLenShort && d.length != FrameLenLong {
			// The length bytes may hold the start of the next frame.
			d.Reset()
			d.Feed(hi)
			return d.Feed(b)
		}
		d.sum += uint16(b)
		d.index++
		d.state = statePayload

	case statePayload:
		d.sum += uint16(b)
		d.payload[d.index-headerLen] = b
		d.index++
		if d.index == headerLen+d.length-2 {
			d.state = stateChecksumHi
		}

	case stateChecksumHi:
		d.checksum = uint16(b) << 8
		d.index++
		d.state = stateChecksumLo

	case stateChecksumLo:
		d.checksum |= uint16(b)
		ok := d.checksum == d.sum
		if ok {
			d.decode()
			d.status = StatusOK
			d.frames++
		}
		d.Reset()
		return ok
	}

	return false
}

func (d *Decoder) word(offset int) uint16 {
	return binary.BigEndian.Uint16(d.payload[offset:])
}

func (d *Decoder) decode() {
	payloadLen := d.length - 2
	r := Reading{
		PM1SP:  d.word(0),
		PM25SP: d.word(2),
		PM10SP: d.word(4),
		PM1AE:  d.word(6),
		PM25AE: d.word(8),
		PM10AE: d.word(10),
	}

	// Short frames carry 9 words: counts stop at 1.0 µm.
	r.Count03 = d.word(12)
	r.Count05 = d.word(14)
	r.Count10 = d.word(16)
	if payloadLen >= 20 {
		r.Count25 = d.word(18)
	}
	if payloadLen >= 24 {
		switch d.model {
		case ModelPMS5003T:
			r.Temperature = float32(int16(d.word(20))) / 10
			r.Humidity = float32(d.word(22)) / 10
			r.HasTempHum = true
		default:
			r.Count50 = d.word(20)
			r.Count100 = d.word(22)
		}
	}
	if payloadLen >= 26 && d.model == ModelPMS5003S {
		r.HCHO = float32(d.word(24)) / 1000
		r.HasHCHO = true
	}

	d.reading = r
}
