package sensors

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/co2"
	"github.com/itohio/agmon/pkg/co2/mhz19"
	"github.com/itohio/agmon/pkg/co2/s8"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultABCDays is the automatic baseline correction period.
	DefaultABCDays = 8

	s8Retries    = 3
	s8RetryDelay = 200 * time.Millisecond
	// s8MaxJump rejects a reading this far from the previous one.
	s8MaxJump = 500
)

// S8 reads a SenseAir S8.
type S8 struct {
	dev     *s8.Sensor
	clock   clock.Clock
	abcDays int
	fails   int
	log     *log.Entry
}

// NewS8 creates an S8 adapter. A negative abcDays leaves the sensor's ABC
// period untouched, 0 disables ABC.
func NewS8(stream io.ReadWriter, c clock.Clock, abcDays int) *S8 {
	c = clock.Or(c)
	return &S8{
		dev:     s8.New(stream, c, s8.Config{}),
		clock:   c,
		abcDays: abcDays,
		log:     logger("s8"),
	}
}

// Device exposes the wrapped driver for calibration commands.
func (a *S8) Device() *s8.Sensor {
	return a.dev
}

func (a *S8) Name() string                       { return "s8" }
func (a *S8) Measurements() gatherer.Measurement { return gatherer.CO2 }

// Begin checks the sensor answers, reports its identity and applies the ABC
// period.
func (a *S8) Begin(ctx context.Context) error {
	version, err := a.dev.Init(ctx)
	if err != nil {
		return err
	}
	fields := log.Fields{"firmware": version}
	if typeID, err := a.dev.SensorTypeID(ctx); err == nil {
		fields["type"] = fmt.Sprintf("0x%06X", typeID)
	} else {
		a.log.Warnf("can't read sensor type: %s", err)
	}

	if a.abcDays >= 0 {
		if err := a.dev.SetABCPeriod(ctx, a.abcDays*24); err != nil {
			return errors.Wrap(err, "s8 abc period")
		}
	}
	if hours, err := a.dev.ABCPeriod(ctx); err == nil {
		fields["abc_hours"] = hours
	}
	a.log.WithFields(fields).Info("SenseAir S8 found")
	return nil
}

// Update takes a stable reading, retrying implausible values. A failed cycle
// keeps the previous value until MaxFailures cycles failed in a row.
func (a *S8) Update(ctx context.Context, s *gatherer.Snapshot) {
	prev := s.CO2
	value, err := co2.ReadStable(ctx, a.dev, co2.Tolerance)
	for tries := 0; !acceptCO2(value, prev, err); tries++ {
		if tries >= s8Retries {
			a.fail(s, value, err)
			return
		}
		if err := a.clock.Sleep(ctx, s8RetryDelay); err != nil {
			return
		}
		value, err = co2.ReadStable(ctx, a.dev, co2.Tolerance)
	}
	a.fails = 0
	s.CO2 = value
}

func (a *S8) fail(s *gatherer.Snapshot, value int, err error) {
	a.fails++
	a.log.WithFields(log.Fields{
		"code":  co2.Code(err),
		"fails": a.fails,
	}).Warnf("couldn't get proper CO2 reading, last %d ppm: %v", value, err)
	if a.fails >= MaxFailures {
		s.CO2 = correction.InvalidCO2
	}
}

func acceptCO2(value, prev int, err error) bool {
	if err != nil || value <= 0 {
		return false
	}
	if prev <= 0 {
		return true
	}
	diff := value - prev
	if diff < 0 {
		diff = -diff
	}
	return diff < s8MaxJump
}

// MHZ19 reads a Winsen MH-Z19.
type MHZ19 struct {
	dev *mhz19.Sensor
	abc bool
	log *log.Entry
}

// NewMHZ19 creates an MH-Z19 adapter. abc selects automatic baseline
// correction.
func NewMHZ19(stream io.ReadWriter, c clock.Clock, abc bool) *MHZ19 {
	return &MHZ19{
		dev: mhz19.New(stream, c, mhz19.Config{}),
		abc: abc,
		log: logger("mhz19"),
	}
}

// Device exposes the wrapped driver for calibration commands.
func (a *MHZ19) Device() *mhz19.Sensor {
	return a.dev
}

func (a *MHZ19) Name() string                       { return "mhz19" }
func (a *MHZ19) Measurements() gatherer.Measurement { return gatherer.CO2 }

// Begin configures ABC and checks the sensor answers.
func (a *MHZ19) Begin(ctx context.Context) error {
	if err := a.dev.SetABC(a.abc); err != nil {
		return errors.Wrap(err, "mhz19 abc")
	}
	r, err := a.dev.Read(ctx)
	if err != nil {
		return errors.Wrap(err, "mhz19")
	}
	a.log.WithFields(log.Fields{"co2": r.CO2, "abc": a.abc}).Info("MH-Z19 found")
	return nil
}

// Update takes a stable reading. Failures are reported as an invalid value.
func (a *MHZ19) Update(ctx context.Context, s *gatherer.Snapshot) {
	value, err := co2.ReadStable(ctx, a.dev, co2.Tolerance)
	if err != nil {
		a.log.WithField("code", co2.Code(err)).Warnf("read failed: %s", err)
		s.CO2 = correction.InvalidCO2
		return
	}
	s.CO2 = value
}
