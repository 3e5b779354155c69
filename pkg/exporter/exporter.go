// Package exporter publishes gathered snapshots: Prometheus/OpenMetrics
// scrapes, a local JSON endpoint and an MQTT publisher.
package exporter

import (
	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
)

// Source returns the latest snapshot.
type Source func() gatherer.Snapshot

// Device identifies the monitor.
type Device struct {
	Serial    string
	Firmware  string
	Model     string
	BootCount int
}

// NewSerial generates a serial number for devices without one.
func NewSerial() string {
	id := uuid.New()
	return id.String()[:8] + id.String()[9:13]
}

// Options selects the corrections applied to the compensated values.
type Options struct {
	PM          correction.PMCorrection
	Temperature correction.TempHumCorrection
	Humidity    correction.TempHumCorrection
}

// DefaultOptions leaves every value uncorrected.
func DefaultOptions() Options {
	return Options{
		PM:          correction.DefaultPMCorrection(),
		Temperature: correction.DefaultTempHumCorrection(),
		Humidity:    correction.DefaultTempHumCorrection(),
	}
}

func round2(v float32) float32 {
	return math32.Round(v*100) / 100
}
