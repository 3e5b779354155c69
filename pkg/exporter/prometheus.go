package exporter

import (
	"net/http"

	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agmon"

type metric struct {
	desc  *prometheus.Desc
	value func(s gatherer.Snapshot, o Options) (float64, bool)
}

func newDesc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

func intValue(v int, valid func(int) bool) (float64, bool) {
	return float64(v), valid(v)
}

func validPM(v int) bool    { return correction.ValidPM(float32(v)) }
func validCount(v int) bool { return v >= 0 }

var metrics = []metric{
	{newDesc("co2_ppm", "Carbon dioxide concentration (units: ppm)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.CO2, correction.ValidCO2)
	}},
	{newDesc("pm1_ugm3", "PM1.0 atmospheric concentration (units: µg/m³)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.PM01, validPM)
	}},
	{newDesc("pm2d5_ugm3", "PM2.5 atmospheric concentration (units: µg/m³)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.PM25, validPM)
	}},
	{newDesc("pm10_ugm3", "PM10 atmospheric concentration (units: µg/m³)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.PM10, validPM)
	}},
	{newDesc("pm2d5_compensated_ugm3", "PM2.5 concentration after correction (units: µg/m³)"), func(s gatherer.Snapshot, o Options) (float64, bool) {
		v, ok := s.CorrectedPM25(o.PM)
		return float64(v), ok
	}},
	{newDesc("pm0d3_p100ml", "Particles above 0.3 µm (units: per 100 ml)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.PM003Count, validCount)
	}},
	{newDesc("pm2d5_us_aqi", "US AQI of the atmospheric PM2.5"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		v, ok := s.USAQI()
		return float64(v), ok
	}},
	{newDesc("temperature_celsius", "Air temperature (units: degrees Celsius)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return float64(s.Temperature), correction.ValidTemperature(s.Temperature)
	}},
	{newDesc("temperature_compensated_celsius", "Air temperature after correction (units: degrees Celsius)"), func(s gatherer.Snapshot, o Options) (float64, bool) {
		return float64(correction.CorrectTemperature(s.Temperature, o.Temperature)), correction.ValidTemperature(s.Temperature)
	}},
	{newDesc("humidity_percent", "Relative humidity (units: %)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return float64(s.Humidity), correction.ValidHumidity(s.Humidity)
	}},
	{newDesc("humidity_compensated_percent", "Relative humidity after correction (units: %)"), func(s gatherer.Snapshot, o Options) (float64, bool) {
		return float64(correction.CorrectHumidity(s.Humidity, o.Humidity)), correction.ValidHumidity(s.Humidity)
	}},
	{newDesc("tvoc_index", "VOC index"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.TVOC, correction.ValidIndex)
	}},
	{newDesc("tvoc_raw", "Raw VOC signal (units: ticks)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.TVOCRaw, correction.ValidIndex)
	}},
	{newDesc("nox_index", "NOx index"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.NOx, correction.ValidIndex)
	}},
	{newDesc("nox_raw", "Raw NOx signal (units: ticks)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return intValue(s.NOxRaw, correction.ValidIndex)
	}},
	{newDesc("boot_time_seconds", "Agent start time (units: seconds since epoch)"), func(s gatherer.Snapshot, _ Options) (float64, bool) {
		return float64(s.BootTime.Unix()), !s.BootTime.IsZero()
	}},
}

var (
	infoDesc   = newDesc("info", "Device identity", "serial_number", "firmware", "model")
	aqi24hDesc = newDesc("pm2d5_us_aqi_24h", "US AQI of the 24 hour PM2.5 average")
)

// Collector exposes the latest snapshot as gauges. Invalid values are not
// exported.
type Collector struct {
	source Source
	device Device
	opts   Options
	aqi24h func() (int, bool)
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from src. aqi24h may be nil.
func NewCollector(src Source, d Device, o Options, aqi24h func() (int, bool)) *Collector {
	return &Collector{source: src, device: d, opts: o, aqi24h: aqi24h}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range metrics {
		ch <- m.desc
	}
	ch <- infoDesc
	ch <- aqi24hDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	for _, m := range metrics {
		if v, ok := m.value(s, c.opts); ok {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, v)
		}
	}
	ch <- prometheus.MustNewConstMetric(infoDesc, prometheus.GaugeValue, 1, c.device.Serial, c.device.Firmware, c.device.Model)
	if c.aqi24h != nil {
		if v, ok := c.aqi24h(); ok {
			ch <- prometheus.MustNewConstMetric(aqi24hDesc, prometheus.GaugeValue, float64(v))
		}
	}
}

// NewRegistry registers c together with the Go runtime and build info
// collectors.
func NewRegistry(c prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// MetricsHandler exposes reg via HTTP.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}
