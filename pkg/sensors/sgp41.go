package sensors

import (
	"context"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/sgp41"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"
)

const (
	sgp41ConditioningStep = time.Second
	// sgp41FailMax consecutive failed reads invalidate the signals and indices.
	sgp41FailMax = 5
)

// SGP41Config configures the gas sensor adapter.
type SGP41Config struct {
	// SamplingInterval is the period between Update calls.
	SamplingInterval time.Duration
	// Learning offsets in hours. Zero keeps the algorithm default of 12.
	TVOCLearningOffset int
	NOxLearningOffset  int
}

// SGP41 reads raw VOC and NOx signals and turns them into indices.
type SGP41 struct {
	dev   *sgp41.Sensor
	voc   *sgp41.GasIndex
	nox   *sgp41.GasIndex
	clock clock.Clock
	fails int
	log   *log.Entry
}

// NewSGP41 creates an SGP41 adapter. A nil clock selects the system clock.
func NewSGP41(bus drivers.I2C, c clock.Clock, cfg SGP41Config) *SGP41 {
	c = clock.Or(c)
	interval := float32(cfg.SamplingInterval.Seconds())
	a := &SGP41{
		dev:   sgp41.New(bus, c),
		voc:   sgp41.NewVOCIndex(interval),
		nox:   sgp41.NewNOxIndex(interval),
		clock: c,
		log:   logger("sgp41"),
	}
	for _, l := range []struct {
		index *sgp41.GasIndex
		hours int
	}{{a.voc, cfg.TVOCLearningOffset}, {a.nox, cfg.NOxLearningOffset}} {
		if l.hours == 0 {
			continue
		}
		if err := l.index.SetLearningTimeOffset(int32(l.hours)); err != nil {
			a.log.Warnf("learning offset ignored: %s", err)
		}
	}
	return a
}

func (a *SGP41) Name() string { return "sgp41" }

func (a *SGP41) Measurements() gatherer.Measurement {
	return gatherer.TVOC | gatherer.NOx
}

// Begin runs the self test and conditions the NOx pixel.
func (a *SGP41) Begin(ctx context.Context) error {
	if err := a.dev.SelfTest(ctx); err != nil {
		return err
	}
	serial, err := a.dev.SerialNumber(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < sgp41.ConditioningCycles; i++ {
		if _, err := a.dev.Conditioning(ctx, sgp41.DefaultRH, sgp41.DefaultT); err != nil {
			return errors.Wrapf(err, "conditioning step %d", i)
		}
		if err := a.clock.Sleep(ctx, sgp41ConditioningStep); err != nil {
			return err
		}
	}
	a.log.WithField("serial", serial).Info("gas sensor conditioned")
	return nil
}

// Update measures the raw signals compensated with the snapshot's
// temperature and humidity and advances both index algorithms. The indices
// read 0 while the algorithms are in their initial blackout.
func (a *SGP41) Update(ctx context.Context, s *gatherer.Snapshot) {
	h, t := math32.NaN(), math32.NaN()
	if correction.ValidHumidity(s.Humidity) {
		h = s.Humidity
	}
	if correction.ValidTemperature(s.Temperature) {
		t = s.Temperature
	}
	rh, tk := sgp41.CompensationTicks(h, t)

	voc, nox, err := a.dev.MeasureRaw(ctx, rh, tk)
	if err != nil {
		a.fails++
		a.log.Warnf("read failed (%d): %s", a.fails, err)
		if a.fails >= sgp41FailMax {
			s.TVOCRaw = correction.InvalidIndex
			s.NOxRaw = correction.InvalidIndex
			s.TVOC = correction.InvalidIndex
			s.NOx = correction.InvalidIndex
		}
		return
	}
	a.fails = 0
	s.TVOCRaw = int(voc)
	s.NOxRaw = int(nox)
	s.TVOC = int(a.voc.Process(int32(voc)))
	s.NOx = int(a.nox.Process(int32(nox)))
}
