package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/itohio/agmon/pkg/sht"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.PMS)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, CO2S8, cfg.Sensors.CO2.Model)
	assert.Equal(t, 8, cfg.Sensors.CO2.ABCDays)
	assert.Equal(t, float32(-2), cfg.Sensors.SHT.TemperatureOffset)
	assert.Equal(t, 12, cfg.Sensors.SGP41.TVOCLearningOffset)
	assert.Equal(t, 12, cfg.Sensors.SGP41.NOxLearningOffset)
	assert.Equal(t, PMStandardUGM3, cfg.Display.PMStandard)
	assert.Equal(t, gatherer.Celsius, cfg.Display.TemperatureUnit)
	assert.Equal(t, 3*time.Second, cfg.Gatherer.Interval)
	assert.Equal(t, correction.AlgorithmNone, cfg.Correction.PM.Algorithm)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.PMS)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeTemp(t, "agmon.yaml", `
device:
  serial: "84f3eb1234"
serial:
  pms: "/dev/ttyAMA0"
  co2: "/dev/ttyAMA1"
sensors:
  pms:
    model: PMS5003T
    duty_cycle: true
  co2:
    model: mhz19
    abc_days: 0
  sht:
    model: sht4x
    accuracy: high
    temperature_offset: -1.5
  sgp41:
    enabled: true
correction:
  pm:
    algorithm: slr_PMS5003_20240104
    scaling_factor: 0.02838
    intercept: 1.1
    use_epa: true
  temperature:
    algorithm: ag_pms5003t_2024
display:
  pm_standard: us-aqi
  temperature_unit: f
gatherer:
  interval: 5s
exporter:
  mqtt:
    broker: tcp://localhost:1883
    qos: 1
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "84f3eb1234", cfg.Device.Serial)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.PMS)
	assert.Equal(t, pms.ModelPMS5003T, cfg.PMSModel())
	assert.True(t, cfg.Sensors.PMS.DutyCycle)
	assert.Equal(t, CO2MHZ19, cfg.Sensors.CO2.Model)
	assert.Equal(t, 0, cfg.Sensors.CO2.ABCDays, "explicit zero disables ABC")
	assert.Equal(t, sht.SHT4X, cfg.SHTModel())
	assert.Equal(t, sht.High, cfg.SHTAccuracy())
	assert.Equal(t, float32(-1.5), cfg.Sensors.SHT.TemperatureOffset)
	assert.True(t, cfg.Sensors.SGP41.Enabled)
	assert.Equal(t, correction.AlgorithmSLRCustom, cfg.Correction.PM.Algorithm)
	assert.InDelta(t, 0.02838, cfg.Correction.PM.ScalingFactor, 1e-6)
	assert.True(t, cfg.Correction.PM.UseEPA)
	assert.Equal(t, correction.TempHumPMS5003T2024, cfg.Correction.Temperature.Algorithm)
	assert.Equal(t, correction.TempHumNone, cfg.Correction.Humidity.Algorithm)
	assert.Equal(t, PMStandardUSAQI, cfg.Display.PMStandard)
	assert.Equal(t, gatherer.Fahrenheit, cfg.Display.TemperatureUnit)
	assert.Equal(t, 5*time.Second, cfg.Gatherer.Interval)
	assert.Equal(t, "tcp://localhost:1883", cfg.Exporter.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.Exporter.MQTT.QoS)
	assert.Equal(t, "agmon", cfg.Exporter.MQTT.Topic)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "bad.yaml", "invalid: yaml: content: ["))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_UnknownAlgorithm(t *testing.T) {
	cfg, err := Load(writeTemp(t, "bad.yaml", "correction:\n  pm:\n    algorithm: magic\n"))
	assert.ErrorIs(t, err, correction.ErrUnknownAlgorithm)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "partial.yaml", `
serial:
  pms: "/dev/ttyS0"
`))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS0", cfg.Serial.PMS)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.CO2)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, CO2S8, cfg.Sensors.CO2.Model)
}

func TestLoad_EmptyFieldsGetDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "empty.yaml", `
sensors:
  co2:
    model: ""
gatherer:
  interval: 0s
log:
  level: ""
`))
	require.NoError(t, err)
	assert.Equal(t, CO2S8, cfg.Sensors.CO2.Model)
	assert.Equal(t, gatherer.DefaultInterval, cfg.Gatherer.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.PMS = "/dev/ttyS1"
	cfg.Correction.PM = correction.PMCorrection{Algorithm: correction.AlgorithmEPA2021, ScalingFactor: 1}
	cfg.Display.TemperatureUnit = gatherer.Fahrenheit

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", loaded.Serial.PMS)
	assert.Equal(t, correction.AlgorithmEPA2021, loaded.Correction.PM.Algorithm)
	assert.Equal(t, gatherer.Fahrenheit, loaded.Display.TemperatureUnit)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AGMON_SERIAL_PMS", "/dev/ttyACM3")
	t.Setenv("AGMON_CO2_MODEL", "none")
	t.Setenv("AGMON_ABC_DAYS", "30")
	t.Setenv("AGMON_SGP41_ENABLED", "true")
	t.Setenv("AGMON_INTERVAL", "10s")

	cfg := Default()
	cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "/dev/ttyACM3", cfg.Serial.PMS)
	assert.Equal(t, CO2None, cfg.Sensors.CO2.Model)
	assert.Equal(t, 30, cfg.Sensors.CO2.ABCDays)
	assert.True(t, cfg.Sensors.SGP41.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Gatherer.Interval)
}

func TestApplyEnv_MalformedValuesKeepDefaults(t *testing.T) {
	t.Setenv("AGMON_ABC_DAYS", "eight")
	t.Setenv("AGMON_INTERVAL", "soon")
	t.Setenv("AGMON_PMS_ENABLED", "maybe")

	cfg := Default()
	cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 8, cfg.Sensors.CO2.ABCDays)
	assert.Equal(t, gatherer.DefaultInterval, cfg.Gatherer.Interval)
	assert.True(t, cfg.Sensors.PMS.Enabled)
}

func TestApplyEnv_DotEnvFile(t *testing.T) {
	// godotenv never overrides variables that are already set.
	t.Setenv("AGMON_LOG_LEVEL", "warning")
	env := writeTemp(t, "test.env", "AGMON_MQTT_BROKER=tcp://broker:1883\nAGMON_LOG_LEVEL=trace\n")
	t.Cleanup(func() { os.Unsetenv("AGMON_MQTT_BROKER") })

	cfg := Default()
	cfg.ApplyEnv(env)

	assert.Equal(t, "tcp://broker:1883", cfg.Exporter.MQTT.Broker)
	assert.Equal(t, "warning", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "pms model", modify: func(c *Config) { c.Sensors.PMS.Model = "PMS7003" }},
		{name: "co2 model", modify: func(c *Config) { c.Sensors.CO2.Model = "scd30" }},
		{name: "negative abc", modify: func(c *Config) { c.Sensors.CO2.ABCDays = -1 }},
		{name: "abc too long", modify: func(c *Config) { c.Sensors.CO2.ABCDays = 201 }},
		{name: "sht model", modify: func(c *Config) { c.Sensors.SHT.Model = "dht22" }},
		{name: "sht accuracy", modify: func(c *Config) { c.Sensors.SHT.Accuracy = "extreme" }},
		{name: "tvoc learning offset", modify: func(c *Config) { c.Sensors.SGP41.TVOCLearningOffset = 0 }},
		{name: "nox learning offset", modify: func(c *Config) { c.Sensors.SGP41.NOxLearningOffset = 1001 }},
		{name: "pm standard", modify: func(c *Config) { c.Display.PMStandard = "mg" }},
		{name: "temperature unit", modify: func(c *Config) { c.Display.TemperatureUnit = "k" }},
		{name: "log level", modify: func(c *Config) { c.Log.Level = "loud" }},
		{name: "qos", modify: func(c *Config) { c.Exporter.MQTT.QoS = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
