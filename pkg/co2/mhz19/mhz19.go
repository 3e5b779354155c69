// Package mhz19 reads Winsen MH-Z19 CO2 sensors over their 9-byte UART protocol.
package mhz19

import (
	"context"
	"io"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/co2"
	"github.com/pkg/errors"
)

const (
	FrameLen = 9

	startByte = 0xFF
	sensorNum = 0x01

	cmdRead      = 0x86
	cmdABC       = 0x79
	cmdZeroPoint = 0x87

	abcOn  = 0xA0
	abcOff = 0x00

	// temperatureOffset is subtracted from byte 4 of a read response.
	temperatureOffset = 44
)

// Config tunes the response wait. Zero values select defaults.
type Config struct {
	// Attempts is how many times the first response byte is polled for.
	Attempts int
	// Interval is the pause between polls.
	Interval time.Duration
	// IdlePolls is how many empty polls end a partially received frame.
	IdlePolls int
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 10
	}
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.IdlePolls <= 0 {
		c.IdlePolls = 3
	}
	return c
}

// Reading is a decoded read response.
type Reading struct {
	CO2         int
	Temperature int
	Status      byte
}

// Sensor talks to one MH-Z19 on a byte stream.
type Sensor struct {
	stream io.ReadWriter
	clock  clock.Clock
	cfg    Config
}

var _ co2.Reader = (*Sensor)(nil)

// New creates a Sensor. A nil clock selects the system clock.
func New(stream io.ReadWriter, c clock.Clock, cfg Config) *Sensor {
	return &Sensor{
		stream: stream,
		clock:  clock.Or(c),
		cfg:    cfg.withDefaults(),
	}
}

// Command builds a 9-byte request with its checksum.
func Command(cmd, b3 byte) [FrameLen]byte {
	f := [FrameLen]byte{startByte, sensorNum, cmd, b3}
	f[8] = Checksum(f[:])
	return f
}

// Checksum computes the checksum of a 9-byte frame over bytes 1..7.
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[1:8] {
		sum += b
	}
	return 0xFF - sum + 1
}

// Decode validates a response frame and extracts the reading.
func Decode(frame []byte) (Reading, error) {
	if len(frame) < FrameLen {
		return Reading{}, co2.ErrIncomplete
	}
	if frame[0] != startByte || frame[1] != cmdRead {
		return Reading{}, errors.Wrapf(co2.ErrFraming, "unexpected header % X", frame[:2])
	}
	if sum := Checksum(frame); sum != frame[8] {
		return Reading{}, errors.Wrapf(co2.ErrChecksum, "got %02X want %02X", frame[8], sum)
	}
	return Reading{
		CO2:         int(frame[2])<<8 | int(frame[3]),
		Temperature: int(frame[4]) - temperatureOffset,
		Status:      frame[5],
	}, nil
}

// Read requests and decodes one reading.
func (s *Sensor) Read(ctx context.Context) (Reading, error) {
	co2.Drain(s.stream)

	cmd := Command(cmdRead, 0)
	if _, err := s.stream.Write(cmd[:]); err != nil {
		return Reading{}, errors.Wrap(err, "mhz19 write")
	}

	frame, err := s.receive(ctx)
	if err != nil {
		return Reading{}, err
	}
	return Decode(frame)
}

// ReadCO2 returns the CO2 concentration in ppm.
func (s *Sensor) ReadCO2(ctx context.Context) (int, error) {
	r, err := s.Read(ctx)
	if err != nil {
		return 0, err
	}
	return r.CO2, nil
}

// receive waits for the start byte, discarding garbage, then collects a frame.
func (s *Sensor) receive(ctx context.Context) ([]byte, error) {
	frame := make([]byte, 0, FrameLen)
	var buf [FrameLen]byte

	received := false
	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		n, err := s.stream.Read(buf[:])
		if err != nil {
			return nil, errors.Wrap(err, "mhz19 read")
		}
		if n > 0 {
			received = true
			frame = appendSynced(frame, buf[:n])
			break
		}
		if err := s.clock.Sleep(ctx, s.cfg.Interval); err != nil {
			return nil, err
		}
	}
	if !received {
		return nil, co2.ErrNoResponse
	}

	idle := 0
	for len(frame) < FrameLen && idle < s.cfg.IdlePolls {
		n, err := s.stream.Read(buf[:FrameLen-len(frame)])
		if err != nil {
			return nil, errors.Wrap(err, "mhz19 read")
		}
		if n == 0 {
			idle++
			if err := s.clock.Sleep(ctx, s.cfg.Interval/10); err != nil {
				return nil, err
			}
			continue
		}
		frame = appendSynced(frame, buf[:n])
	}
	if len(frame) < FrameLen {
		return nil, errors.Wrapf(co2.ErrIncomplete, "%d of %d bytes", len(frame), FrameLen)
	}
	return frame, nil
}

// appendSynced appends data to frame, dropping bytes ahead of the start byte
// while the frame is still empty.
func appendSynced(frame, data []byte) []byte {
	for _, b := range data {
		if len(frame) == 0 && b != startByte {
			continue
		}
		if len(frame) < FrameLen {
			frame = append(frame, b)
		}
	}
	return frame
}

// SetABC enables or disables automatic baseline correction.
func (s *Sensor) SetABC(enabled bool) error {
	arg := byte(abcOff)
	if enabled {
		arg = abcOn
	}
	cmd := Command(cmdABC, arg)
	if _, err := s.stream.Write(cmd[:]); err != nil {
		return errors.Wrap(err, "mhz19 abc")
	}
	return nil
}

// CalibrateZero sets the current concentration as the 400 ppm zero point.
func (s *Sensor) CalibrateZero() error {
	cmd := Command(cmdZeroPoint, 0)
	if _, err := s.stream.Write(cmd[:]); err != nil {
		return errors.Wrap(err, "mhz19 zero calibration")
	}
	return nil
}
