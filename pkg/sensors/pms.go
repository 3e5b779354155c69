package sensors

import (
	"context"
	"io"
	"time"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPMSWakeInterval = 120 * time.Second
	DefaultPMSWarmUp       = 30 * time.Second
	DefaultPMSReadTimeout  = 2000 * time.Millisecond

	// A zero PM2.5 is only believed when the previous value was below this.
	pm25ZeroThreshold = 10
)

// PMSConfig tunes the PMS adapter. Zero durations select defaults.
type PMSConfig struct {
	Name  string
	Model pms.Model
	// DutyCycle wakes the sensor every WakeInterval, reads it WarmUp later
	// and puts it back to sleep. Otherwise the sensor streams continuously.
	DutyCycle    bool
	WakeInterval time.Duration
	WarmUp       time.Duration
	ReadTimeout  time.Duration
}

func (c PMSConfig) withDefaults() PMSConfig {
	if c.Name == "" {
		c.Name = c.Model.String()
	}
	if c.WakeInterval <= 0 {
		c.WakeInterval = DefaultPMSWakeInterval
	}
	if c.WarmUp <= 0 {
		c.WarmUp = DefaultPMSWarmUp
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultPMSReadTimeout
	}
	return c
}

// PMS reads a Plantower particle sensor.
type PMS struct {
	cfg   PMSConfig
	dev   *pms.Sensor
	clock clock.Clock
	log   *log.Entry

	awake    bool
	wokeAt   time.Time
	nextWake time.Time
	misses   int
}

// NewPMS creates a PMS adapter on stream. A nil clock selects the system clock.
func NewPMS(stream io.ReadWriter, c clock.Clock, cfg PMSConfig) *PMS {
	cfg = cfg.withDefaults()
	c = clock.Or(c)
	return &PMS{
		cfg:   cfg,
		dev:   pms.NewSensor(stream, cfg.Model, c),
		clock: c,
		log:   logger(cfg.Name),
	}
}

// Device exposes the wrapped driver.
func (p *PMS) Device() *pms.Sensor {
	return p.dev
}

func (p *PMS) Name() string {
	return p.cfg.Name
}

func (p *PMS) Measurements() gatherer.Measurement {
	if p.cfg.Model == pms.ModelPMS5003T {
		return gatherer.Particle | gatherer.Temperature | gatherer.Humidity
	}
	return gatherer.Particle
}

// Begin wakes the sensor and switches it to active mode.
func (p *PMS) Begin(ctx context.Context) error {
	if err := p.dev.Wake(); err != nil {
		return errors.Wrap(err, p.cfg.Name)
	}
	if err := p.dev.ActiveMode(); err != nil {
		return errors.Wrap(err, p.cfg.Name)
	}
	now := p.clock.Now()
	p.awake = true
	p.wokeAt = now
	p.nextWake = now.Add(p.cfg.WakeInterval)
	p.log.WithFields(log.Fields{
		"model":      p.cfg.Model,
		"duty_cycle": p.cfg.DutyCycle,
	}).Info("particle sensor started")
	return nil
}

func (p *PMS) Update(ctx context.Context, s *gatherer.Snapshot) {
	if p.cfg.DutyCycle {
		p.updateDutyCycle(ctx, s)
		return
	}

	got, err := p.dev.Update()
	if err != nil {
		p.log.Warnf("read failed: %s", err)
	}
	if got {
		p.apply(p.dev.Reading(), s)
		return
	}
	if p.dev.Failed() {
		p.log.Debugf("no frame for %d cycles", p.dev.FailCount())
		p.invalidate(s)
	}
}

func (p *PMS) updateDutyCycle(ctx context.Context, s *gatherer.Snapshot) {
	now := p.clock.Now()
	if !p.awake {
		if now.Before(p.nextWake) {
			return
		}
		if err := p.dev.Wake(); err != nil {
			p.log.Warnf("wake failed: %s", err)
			return
		}
		p.awake = true
		p.wokeAt = now
		p.nextWake = now.Add(p.cfg.WakeInterval)
		return
	}

	if now.Sub(p.wokeAt) < p.cfg.WarmUp {
		// Frames sent while the fan spins up are discarded.
		if _, err := p.dev.Read(); err != nil {
			p.log.Debugf("read during warm up: %s", err)
		}
		return
	}

	r, err := p.dev.ReadUntil(ctx, p.cfg.ReadTimeout)
	if err != nil {
		p.misses++
		p.log.Warnf("couldn't get a reading: %s", err)
		if p.misses >= pms.FailCountMax {
			p.invalidate(s)
		}
		return
	}
	p.misses = 0
	if !p.apply(r, s) {
		return
	}
	if err := p.dev.Sleep(); err != nil {
		p.log.Warnf("sleep failed: %s", err)
		return
	}
	p.awake = false
}

// apply stores r unless it reports a suspicious zero PM2.5.
func (p *PMS) apply(r pms.Reading, s *gatherer.Snapshot) bool {
	if r.PM25AE == 0 && s.PM25 >= pm25ZeroThreshold {
		p.log.Debugf("ignoring zero PM2.5 after %d", s.PM25)
		return false
	}

	s.PM01, s.PM25, s.PM10 = int(r.PM1AE), int(r.PM25AE), int(r.PM10AE)
	s.PM01Standard, s.PM25Standard, s.PM10Standard = int(r.PM1SP), int(r.PM25SP), int(r.PM10SP)
	s.PM003Count, s.PM005Count, s.PM01Count = int(r.Count03), int(r.Count05), int(r.Count10)
	s.PM25Count = int(r.Count25)
	if p.cfg.Model != pms.ModelPMS5003T {
		s.PM50Count, s.PM10Count = int(r.Count50), int(r.Count100)
	}
	// PMS5003T values are stored raw; consumers apply the configured correction.
	if r.HasTempHum {
		s.Temperature = r.Temperature
		s.Humidity = r.Humidity
	}
	return true
}

func (p *PMS) invalidate(s *gatherer.Snapshot) {
	s.PM01, s.PM25, s.PM10 = correction.InvalidPM, correction.InvalidPM, correction.InvalidPM
	s.PM01Standard, s.PM25Standard, s.PM10Standard = correction.InvalidPM, correction.InvalidPM, correction.InvalidPM
	s.PM003Count, s.PM005Count, s.PM01Count = correction.InvalidPM, correction.InvalidPM, correction.InvalidPM
	s.PM25Count, s.PM50Count, s.PM10Count = correction.InvalidPM, correction.InvalidPM, correction.InvalidPM
	if p.cfg.Model == pms.ModelPMS5003T {
		s.Temperature = correction.InvalidTemperature
		s.Humidity = correction.InvalidHumidity
	}
}
