package sensors

import (
	"context"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/sht"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultTemperatureOffset compensates the self heating of the enclosure.
const DefaultTemperatureOffset float32 = -2

// SHT reads a Sensirion humidity sensor.
type SHT struct {
	dev      *sht.Sensor
	accuracy sht.Accuracy
	offset   float32
	fails    int
	log      *log.Entry
}

// NewSHT creates an SHT adapter. offset is added to every temperature.
func NewSHT(bus sht.Bus, model sht.Model, accuracy sht.Accuracy, offset float32, c clock.Clock) *SHT {
	return &SHT{
		dev:      sht.New(bus, model, clock.Or(c)),
		accuracy: accuracy,
		offset:   offset,
		log:      logger("sht"),
	}
}

func (a *SHT) Name() string { return "sht" }

func (a *SHT) Measurements() gatherer.Measurement {
	return gatherer.Temperature | gatherer.Humidity
}

// Begin initialises the sensor and applies the accuracy when supported.
func (a *SHT) Begin(ctx context.Context) error {
	if err := a.dev.Init(ctx); err != nil {
		return err
	}
	if err := a.dev.SetAccuracy(a.accuracy); err != nil {
		if !errors.Is(err, sht.ErrUnsupported) {
			return err
		}
		a.log.Debugf("keeping %v accuracy: %s", a.dev.Accuracy(), err)
	}
	a.log.WithFields(log.Fields{
		"model":    a.dev.Model(),
		"accuracy": a.dev.Accuracy(),
	}).Info("humidity sensor found")
	return nil
}

// Update reads one sample. A failed read keeps the previous values until
// MaxFailures reads failed in a row.
func (a *SHT) Update(ctx context.Context, s *gatherer.Snapshot) {
	sample, err := a.dev.ReadSample(ctx)
	if err != nil {
		a.fails++
		a.log.Warnf("can't read sensor data (%d): %s", a.fails, err)
		if a.fails >= MaxFailures {
			s.Temperature = correction.InvalidTemperature
			s.Humidity = correction.InvalidHumidity
		}
		return
	}
	a.fails = 0
	s.Temperature = sample.Temperature + a.offset
	s.Humidity = sample.Humidity
}
