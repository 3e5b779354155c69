package exporter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevice = Device{Serial: "abc", Firmware: "1.2.3", Model: "agmon", BootCount: 3}

func testSnapshot() gatherer.Snapshot {
	s := gatherer.NewSnapshot()
	s.CO2 = 612
	s.PM01, s.PM25, s.PM10 = 20, 35, 40
	s.PM003Count = 5000
	s.Temperature = 23.456
	s.Humidity = 45
	s.TVOCRaw = 31000
	s.BootTime = time.Unix(1700000000, 0)
	return s
}

func source(s gatherer.Snapshot) Source {
	return func() gatherer.Snapshot { return s }
}

func TestNewSerial(t *testing.T) {
	a, b := NewSerial(), NewSerial()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}

func TestPayload(t *testing.T) {
	opts := DefaultOptions()
	opts.PM = correction.PMCorrection{Algorithm: correction.AlgorithmEPA2021}
	opts.Temperature = correction.TempHumCorrection{Algorithm: correction.TempHumSLRCustom, ScalingFactor: 1, Intercept: -1}

	p := Payload(testSnapshot(), testDevice, opts, true)

	assert.Equal(t, 612, p["rco2"])
	assert.Equal(t, 35, p["pm02"])
	assert.Equal(t, 5000, p["pm003Count"])
	assert.Equal(t, round2(correction.CompensatePM25(35, 45)), p["pm02Compensated"])
	assert.InDelta(t, 23.46, p["atmp"], 1e-4)
	assert.InDelta(t, 22.46, p["atmpCompensated"], 1e-4)
	assert.Equal(t, float32(45), p["rhum"])
	assert.Equal(t, 31000, p["tvocRaw"])
	assert.Equal(t, int64(1700000000), p["bootTime"])
	assert.Equal(t, 3, p["bootCount"])
	assert.Equal(t, "abc", p["serialno"])
	assert.Equal(t, "1.2.3", p["firmware"])

	for _, key := range []string{"pm01Standard", "pm50Count", "tvocIndex", "noxIndex", "noxRaw"} {
		assert.NotContains(t, p, key)
	}
}

func TestPayload_Invalid(t *testing.T) {
	p := Payload(gatherer.NewSnapshot(), testDevice, DefaultOptions(), false)
	assert.Equal(t, map[string]any{"boot": 3, "bootCount": 3}, p)
}

func TestJSONHandler(t *testing.T) {
	h := JSONHandler(source(testSnapshot()), testDevice, DefaultOptions())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/measures/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(612), got["rco2"])
	assert.Equal(t, float64(35), got["pm02Compensated"])
	assert.Equal(t, "agmon", got["model"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/measures/current", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCollector(t *testing.T) {
	c := NewCollector(source(testSnapshot()), testDevice, DefaultOptions(), func() (int, bool) { return 42, true })

	expected := `
# HELP agmon_co2_ppm Carbon dioxide concentration (units: ppm)
# TYPE agmon_co2_ppm gauge
agmon_co2_ppm 612
# HELP agmon_pm2d5_ugm3 PM2.5 atmospheric concentration (units: µg/m³)
# TYPE agmon_pm2d5_ugm3 gauge
agmon_pm2d5_ugm3 35
# HELP agmon_info Device identity
# TYPE agmon_info gauge
agmon_info{firmware="1.2.3",model="agmon",serial_number="abc"} 1
# HELP agmon_pm2d5_us_aqi_24h US AQI of the 24 hour PM2.5 average
# TYPE agmon_pm2d5_us_aqi_24h gauge
agmon_pm2d5_us_aqi_24h 42
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"agmon_co2_ppm", "agmon_pm2d5_ugm3", "agmon_info", "agmon_pm2d5_us_aqi_24h")
	assert.NoError(t, err)
}

func TestCollector_SkipsInvalid(t *testing.T) {
	c := NewCollector(source(gatherer.NewSnapshot()), testDevice, DefaultOptions(), func() (int, bool) { return 0, false })

	assert.Equal(t, 0, testutil.CollectAndCount(c, "agmon_co2_ppm"))
	assert.Equal(t, 0, testutil.CollectAndCount(c, "agmon_temperature_celsius"))
	assert.Equal(t, 0, testutil.CollectAndCount(c, "agmon_pm2d5_us_aqi_24h"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "agmon_info"))
}

func TestMetricsHandler(t *testing.T) {
	c := NewCollector(source(testSnapshot()), testDevice, DefaultOptions(), nil)
	srv := httptest.NewServer(MetricsHandler(NewRegistry(c)))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "agmon_co2_ppm 612")
	assert.Contains(t, string(body), "go_goroutines")
}
