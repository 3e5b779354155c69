package sht

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Model selects the Sensirion sensor family.
type Model int

const (
	Auto Model = iota
	SHT2X
	SHT3X
	// SHT3XAlt is an SHT3x with ADDR pulled high.
	SHT3XAlt
	SHT4X
	SHTC1
)

// DetectOrder is the probe order used by AutoDetect. SHT4x goes first since
// probing it with SHT3x commands corrupts its first reading.
var DetectOrder = []Model{SHT4X, SHT2X, SHT3X, SHT3XAlt, SHTC1}

func (m Model) String() string {
	switch m {
	case Auto:
		return "auto"
	case SHT2X:
		return "sht2x"
	case SHT3X:
		return "sht3x"
	case SHT3XAlt:
		return "sht3x-alt"
	case SHT4X:
		return "sht4x"
	case SHTC1:
		return "shtc1"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel parses the names produced by Model.String.
func ParseModel(s string) (Model, error) {
	for _, m := range append([]Model{Auto}, DetectOrder...) {
		if m.String() == s {
			return m, nil
		}
	}
	return Auto, errors.Errorf("sht: unknown model %q", s)
}

// Accuracy trades measurement time for repeatability.
type Accuracy int

const (
	High Accuracy = iota
	Medium
	Low
)

func (a Accuracy) String() string {
	switch a {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	}
	return fmt.Sprintf("Accuracy(%d)", int(a))
}

// ParseAccuracy parses the names produced by Accuracy.String.
func ParseAccuracy(s string) (Accuracy, error) {
	for _, a := range []Accuracy{High, Medium, Low} {
		if a.String() == s {
			return a, nil
		}
	}
	return High, errors.Errorf("sht: unknown accuracy %q", s)
}

// params describes one sensor family. Temperature is t[0] + t[1]*raw/t[2]
// and humidity is h[0] + h[1]*raw/h[2].
type params struct {
	addr     uint16
	commands [3]uint16
	settle   [3]time.Duration
	cmdSize  int
	crcInit  byte
	accuracy bool
	t        [3]float32
	h        [3]float32
}

func paramsFor(m Model) (params, bool) {
	switch m {
	case SHT2X:
		// T and RH are separate one-byte commands in the high and low byte.
		settle := 85 * time.Millisecond
		return params{
			addr:     0x40,
			commands: [3]uint16{0xF3F5, 0xF3F5, 0xF3F5},
			settle:   [3]time.Duration{settle, settle, settle},
			cmdSize:  1,
			crcInit:  0x00,
			t:        [3]float32{-46.85, 175.72, 65536},
			h:        [3]float32{-6, 125, 65536},
		}, true
	case SHT3X, SHT3XAlt:
		p := params{
			addr:     0x44,
			commands: [3]uint16{0x2400, 0x240B, 0x2416},
			settle:   [3]time.Duration{15 * time.Millisecond, 6 * time.Millisecond, 4 * time.Millisecond},
			cmdSize:  2,
			crcInit:  0xFF,
			accuracy: true,
			t:        [3]float32{-45, 175, 65535},
			h:        [3]float32{0, 100, 65535},
		}
		if m == SHT3XAlt {
			p.addr = 0x45
		}
		return p, true
	case SHT4X:
		return params{
			addr:     0x44,
			commands: [3]uint16{0xFD00, 0xF600, 0xE000},
			settle:   [3]time.Duration{10 * time.Millisecond, 4 * time.Millisecond, 2 * time.Millisecond},
			cmdSize:  1,
			crcInit:  0xFF,
			accuracy: true,
			t:        [3]float32{-45, 175, 65535},
			h:        [3]float32{-6, 125, 65535},
		}, true
	case SHTC1:
		settle := 15 * time.Millisecond
		return params{
			addr:     0x70,
			commands: [3]uint16{0x7866, 0x7866, 0x7866},
			settle:   [3]time.Duration{settle, settle, settle},
			cmdSize:  2,
			crcInit:  0xFF,
			t:        [3]float32{-45, 175, 65535},
			h:        [3]float32{0, 100, 65535},
		}, true
	}
	return params{}, false
}

// Address returns the I2C address of the model, 0 for Auto.
func (m Model) Address() uint16 {
	p, _ := paramsFor(m)
	return p.addr
}
