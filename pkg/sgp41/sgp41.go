// Package sgp41 reads raw VOC and NOx signals from a Sensirion SGP41 and
// turns them into VOC and NOx indices with the Sensirion gas index
// algorithm (see GasIndex).
package sgp41

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/sht"
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

// Address is the fixed I2C address.
const Address = 0x59

const (
	cmdConditioning = 0x2612
	cmdMeasureRaw   = 0x2619
	cmdSelfTest     = 0x280E
	cmdHeaterOff    = 0x3615
	cmdSerialNumber = 0x3682

	selfTestPass = 0xD400
)

const (
	// DefaultRH and DefaultT are the compensation ticks for 50 %RH and 25 °C.
	DefaultRH uint16 = 0x8000
	DefaultT  uint16 = 0x6666

	// ConditioningCycles is the number of one-second conditioning steps
	// required before NOx readings are meaningful.
	ConditioningCycles = 10

	measureDelay  = 50 * time.Millisecond
	selfTestDelay = 320 * time.Millisecond
	commandDelay  = 1 * time.Millisecond
)

var (
	ErrCRC      = errors.New("sgp41: crc mismatch")
	ErrSelfTest = errors.New("sgp41: self test failed")
)

// Sensor is an SGP41 on an I2C bus.
type Sensor struct {
	bus   drivers.I2C
	clock clock.Clock
}

// New creates a sensor. A nil clock selects the system clock.
func New(bus drivers.I2C, c clock.Clock) *Sensor {
	return &Sensor{bus: bus, clock: clock.Or(c)}
}

// CompensationTicks converts relative humidity (%) and temperature (°C) to
// the ticks accepted by Conditioning and MeasureRaw. NaN inputs fall back to
// the defaults.
func CompensationTicks(humidity, temperature float32) (rh, t uint16) {
	rh, t = DefaultRH, DefaultT
	if !math32.IsNaN(humidity) {
		h := math32.Min(math32.Max(humidity, 0), 100)
		rh = uint16(h * 65535 / 100)
	}
	if !math32.IsNaN(temperature) {
		c := math32.Min(math32.Max(temperature, -45), 130)
		t = uint16((c + 45) * 65535 / 175)
	}
	return rh, t
}

func appendWord(b []byte, w uint16) []byte {
	b = binary.BigEndian.AppendUint16(b, w)
	return append(b, sht.CRC(b[len(b)-2:], 0xFF))
}

func (s *Sensor) execute(ctx context.Context, cmd uint16, args []uint16, delay time.Duration, words int) ([]uint16, error) {
	w := binary.BigEndian.AppendUint16(make([]byte, 0, 2+3*len(args)), cmd)
	for _, a := range args {
		w = appendWord(w, a)
	}
	if err := s.bus.Tx(Address, w, nil); err != nil {
		return nil, errors.Wrapf(err, "sgp41 command %04X", cmd)
	}
	if err := s.clock.Sleep(ctx, delay); err != nil {
		return nil, err
	}
	if words == 0 {
		return nil, nil
	}

	r := make([]byte, 3*words)
	if err := s.bus.Tx(Address, nil, r); err != nil {
		return nil, errors.Wrapf(err, "sgp41 read %04X", cmd)
	}
	out := make([]uint16, words)
	for i := range out {
		f := r[3*i : 3*i+3]
		if sht.CRC(f[:2], 0xFF) != f[2] {
			return nil, errors.Wrapf(ErrCRC, "command %04X word %d", cmd, i)
		}
		out[i] = binary.BigEndian.Uint16(f)
	}
	return out, nil
}

// SelfTest runs the built-in self test.
func (s *Sensor) SelfTest(ctx context.Context) error {
	v, err := s.execute(ctx, cmdSelfTest, nil, selfTestDelay, 1)
	if err != nil {
		return err
	}
	if v[0] != selfTestPass {
		return errors.Wrapf(ErrSelfTest, "result %04X", v[0])
	}
	return nil
}

// Conditioning runs one conditioning step and returns the raw VOC ticks.
func (s *Sensor) Conditioning(ctx context.Context, rh, t uint16) (uint16, error) {
	v, err := s.execute(ctx, cmdConditioning, []uint16{rh, t}, measureDelay, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// MeasureRaw returns raw VOC and NOx ticks.
func (s *Sensor) MeasureRaw(ctx context.Context, rh, t uint16) (voc, nox uint16, err error) {
	v, err := s.execute(ctx, cmdMeasureRaw, []uint16{rh, t}, measureDelay, 2)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// HeaterOff stops the hotplate and puts the sensor in idle mode.
func (s *Sensor) HeaterOff(ctx context.Context) error {
	_, err := s.execute(ctx, cmdHeaterOff, nil, commandDelay, 0)
	return err
}

// SerialNumber returns the 48-bit serial number.
func (s *Sensor) SerialNumber(ctx context.Context) (uint64, error) {
	v, err := s.execute(ctx, cmdSerialNumber, nil, commandDelay, 3)
	if err != nil {
		return 0, err
	}
	return uint64(v[0])<<32 | uint64(v[1])<<16 | uint64(v[2]), nil
}
