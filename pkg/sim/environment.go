// Package sim simulates an AirGradient sensor set for development without
// hardware. Each simulator speaks the real wire protocol so the production
// drivers run unchanged against it.
package sim

import (
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/config"
)

// Environment produces air quality values drifting slowly around the
// configured centre values.
type Environment struct {
	cfg   config.MockConfig
	clock clock.Clock

	mu    sync.Mutex
	start time.Time
}

// NewEnvironment creates an environment. A nil clock selects the system clock.
func NewEnvironment(cfg config.MockConfig, c clock.Clock) *Environment {
	c = clock.Or(c)
	return &Environment{cfg: cfg, clock: c, start: c.Now()}
}

// wave returns centre modulated by two slow oscillations. phase decorrelates
// the quantities.
func (e *Environment) wave(centre, phase float32) float32 {
	e.mu.Lock()
	t := float32(e.clock.Now().Sub(e.start).Seconds())
	e.mu.Unlock()

	n := (math32.Sin(t*0.01+phase) + math32.Cos(t*0.0013+phase)) * 0.5
	return centre * (1 + e.cfg.Noise*n)
}

// CO2 returns the concentration in ppm.
func (e *Environment) CO2() int {
	return int(math32.Round(e.wave(float32(e.cfg.CO2), 0)))
}

// PM25 returns the atmospheric PM2.5 concentration in µg/m³.
func (e *Environment) PM25() float32 {
	return math32.Max(e.wave(float32(e.cfg.PM25), 1), 0)
}

// Temperature returns the air temperature in °C.
func (e *Environment) Temperature() float32 {
	return e.wave(e.cfg.Temperature, 2)
}

// Humidity returns the relative humidity in %.
func (e *Environment) Humidity() float32 {
	return math32.Min(math32.Max(e.wave(e.cfg.Humidity, 3), 0), 100)
}

// VOCTicks and NOxTicks are raw SGP41 signals around typical clean air values.
func (e *Environment) VOCTicks() uint16 {
	return uint16(e.wave(30000, 4))
}

func (e *Environment) NOxTicks() uint16 {
	return uint16(e.wave(16000, 5))
}
