package pms

import (
	"context"
	"io"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/pkg/errors"
)

const (
	// DefaultReadTimeout bounds ReadUntil when no timeout is given.
	DefaultReadTimeout = 1000 * time.Millisecond
	// StaleTimeout clears Connected when no valid frame arrived for this long.
	StaleTimeout = 5000 * time.Millisecond

	// FailCountMax consecutive missed updates mark the sensor failed.
	FailCountMax = 10

	pollInterval = 10 * time.Millisecond
	// maxDrain caps the bytes consumed by one Read call.
	maxDrain = 8 * (headerLen + FrameLenLong)
)

var ErrTimeout = errors.New("pms: no valid frame before timeout")

// Sensor decodes frames from a PMS sensor attached to a byte stream.
type Sensor struct {
	stream io.ReadWriter
	dec    *Decoder
	clock  clock.Clock

	started   time.Time
	lastFrame time.Time
	connected bool
	failCount int
	buf       [headerLen + FrameLenLong]byte
}

// NewSensor creates a Sensor. A nil clock selects the system clock.
func NewSensor(stream io.ReadWriter, model Model, c clock.Clock) *Sensor {
	c = clock.Or(c)
	return &Sensor{
		stream:  stream,
		dec:     NewDecoder(model),
		clock:   c,
		started: c.Now(),
	}
}

// Decoder exposes the underlying frame parser.
func (s *Sensor) Decoder() *Decoder {
	return s.dec
}

// Reading returns the last valid frame.
func (s *Sensor) Reading() Reading {
	return s.dec.Reading()
}

// Connected reports whether a valid frame arrived within StaleTimeout.
func (s *Sensor) Connected() bool {
	return s.connected
}

// LastFrame returns the time of the last valid frame, zero if none.
func (s *Sensor) LastFrame() time.Time {
	return s.lastFrame
}

// Read consumes the bytes currently available without waiting for more. It
// returns true if at least one valid frame was decoded.
func (s *Sensor) Read() (bool, error) {
	got := false
	consumed := 0
	for consumed < maxDrain {
		n, err := s.stream.Read(s.buf[:])
		for _, b := range s.buf[:n] {
			if s.dec.Feed(b) {
				got = true
			}
		}
		consumed += n
		if err != nil {
			s.updateLiveness(got)
			return got, errors.Wrap(err, "pms read")
		}
		if n == 0 {
			break
		}
	}
	s.updateLiveness(got)
	return got, nil
}

// ReadUntil polls the stream until a valid frame is decoded, the timeout
// elapses or ctx is done. A zero timeout selects DefaultReadTimeout.
func (s *Sensor) ReadUntil(ctx context.Context, timeout time.Duration) (Reading, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	start := s.clock.Now()
	for {
		ok, err := s.Read()
		if err != nil {
			return Reading{}, err
		}
		if ok {
			return s.dec.Reading(), nil
		}
		if s.clock.Now().Sub(start) >= timeout {
			return Reading{}, ErrTimeout
		}
		if err := s.clock.Sleep(ctx, pollInterval); err != nil {
			return Reading{}, err
		}
	}
}

func (s *Sensor) updateLiveness(got bool) {
	now := s.clock.Now()
	if got {
		s.lastFrame = now
		s.connected = true
		s.failCount = 0
		return
	}
	since := s.lastFrame
	if since.IsZero() {
		since = s.started
	}
	if now.Sub(since) > StaleTimeout {
		s.connected = false
	}
}

// Update performs one periodic read cycle. A cycle without a valid frame
// counts as a failure. It returns true when a new frame was decoded.
func (s *Sensor) Update() (bool, error) {
	got, err := s.Read()
	if !got {
		s.failCount++
	}
	return got, err
}

// FailCount returns the number of consecutive missed update cycles.
func (s *Sensor) FailCount() int {
	return s.failCount
}

// Failed reports whether FailCountMax consecutive cycles missed a frame.
func (s *Sensor) Failed() bool {
	return s.failCount >= FailCountMax
}

// Send writes a command frame.
func (s *Sensor) Send(cmd Command) error {
	if _, err := s.stream.Write(cmd[:]); err != nil {
		return errors.Wrap(err, "pms command")
	}
	return nil
}

// Sleep puts the sensor fan and laser to sleep.
func (s *Sensor) Sleep() error { return s.Send(CommandSleep) }

// Wake resumes a sleeping sensor.
func (s *Sensor) Wake() error { return s.Send(CommandWake) }

// ActiveMode makes the sensor stream frames continuously.
func (s *Sensor) ActiveMode() error { return s.Send(CommandActiveMode) }

// PassiveMode makes the sensor answer only to RequestRead.
func (s *Sensor) PassiveMode() error { return s.Send(CommandPassiveMode) }

// RequestRead asks a passive-mode sensor for one frame.
func (s *Sensor) RequestRead() error { return s.Send(CommandRequestRead) }
