package aqi

import (
	"context"
	"math"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/agmon/pkg/correction"
)

const (
	// SampleInterval is how often the PM2.5 value is sampled.
	SampleInterval = 900 * time.Second
	// Window is the averaging period required for a valid AQI.
	Window = 24 * time.Hour
	// WindowSamples is the number of samples covering Window.
	WindowSamples = int(Window / SampleInterval)
)

// Source returns the current PM2.5 concentration in µg/m³. ok is false when
// no valid value is available.
type Source func() (pm25 float32, ok bool)

// Calculator averages PM2.5 over Window and converts the average to US AQI.
type Calculator struct {
	avg      *MovingAverage[uint16, uint32]
	source   Source
	interval time.Duration
}

// NewCalculator creates a calculator sampling source every SampleInterval.
// A nil source is allowed when samples are pushed with Add.
func NewCalculator(source Source) *Calculator {
	return &Calculator{
		avg:      NewMovingAverage[uint16, uint32](WindowSamples),
		source:   source,
		interval: SampleInterval,
	}
}

// SetInterval overrides the sampling interval used by Run.
func (c *Calculator) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Add stores one PM2.5 sample. Negative values are ignored.
func (c *Calculator) Add(pm25 float32) {
	if pm25 < 0 || math32.IsNaN(pm25) {
		return
	}
	if pm25 > math.MaxUint16 {
		pm25 = math.MaxUint16
	}
	c.avg.Add(uint16(math32.Round(pm25)))
}

// Record samples the source once. It returns false when the source had no
// valid value.
func (c *Calculator) Record() bool {
	if c.source == nil {
		return false
	}
	pm25, ok := c.source()
	if !ok {
		return false
	}
	c.Add(pm25)
	return true
}

// Average returns the current PM2.5 average.
func (c *Calculator) Average() float32 {
	return c.avg.Average()
}

// Samples returns the number of samples in the window.
func (c *Calculator) Samples() int {
	return c.avg.Count()
}

// Available reports whether a full window of samples has been collected.
func (c *Calculator) Available() bool {
	return c.avg.HasReachedCapacity()
}

// AQI returns the 24 hour US AQI. ok is false until the window is full.
func (c *Calculator) AQI() (aqi int, ok bool) {
	return correction.PM25ToUSAQI2012(c.avg.Average()), c.Available()
}

// Run records a sample every interval until ctx is done.
func (c *Calculator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Record()
		}
	}
}
