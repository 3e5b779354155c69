// Package config loads the agent configuration from YAML, a .env file and
// AGMON_* environment variables, in that order of precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/agmon/pkg/co2/s8"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/itohio/agmon/pkg/sht"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGMON_"

// CO2 sensor models.
const (
	CO2None  = "none"
	CO2S8    = "s8"
	CO2MHZ19 = "mhz19"
)

// PMStandard selects how PM2.5 is presented.
type PMStandard string

const (
	PMStandardUGM3  PMStandard = "ugm3"
	PMStandardUSAQI PMStandard = "us-aqi"
)

var ErrInvalid = errors.New("config: invalid value")

// Config represents the application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Serial     SerialConfig     `yaml:"serial"`
	I2C        I2CConfig        `yaml:"i2c"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Correction CorrectionConfig `yaml:"correction"`
	Display    DisplayConfig    `yaml:"display"`
	Gatherer   GathererConfig   `yaml:"gatherer"`
	Exporter   ExporterConfig   `yaml:"exporter"`
	Log        LogConfig        `yaml:"log"`
	Mock       MockConfig       `yaml:"mock"`
}

// DeviceConfig identifies the monitor in exported data.
type DeviceConfig struct {
	// Serial is generated on first start when empty.
	Serial   string `yaml:"serial"`
	Model    string `yaml:"model"`
	Firmware string `yaml:"firmware"`
}

// SerialConfig contains serial port names.
type SerialConfig struct {
	PMS  string `yaml:"pms"`
	CO2  string `yaml:"co2"`
	Baud int    `yaml:"baud"`
}

// I2CConfig selects the I2C bus. An empty name opens the first bus.
type I2CConfig struct {
	Bus string `yaml:"bus"`
}

// SensorsConfig declares which sensors are present.
type SensorsConfig struct {
	PMS   PMSConfig   `yaml:"pms"`
	CO2   CO2Config   `yaml:"co2"`
	SHT   SHTConfig   `yaml:"sht"`
	SGP41 SGP41Config `yaml:"sgp41"`
}

// PMSConfig configures the particle sensor.
type PMSConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Model        string        `yaml:"model"`
	DutyCycle    bool          `yaml:"duty_cycle"`
	WakeInterval time.Duration `yaml:"wake_interval"`
	WarmUp       time.Duration `yaml:"warm_up"`
}

// CO2Config configures the CO2 sensor.
type CO2Config struct {
	Model string `yaml:"model"`
	// ABCDays is the automatic baseline correction period, 0 disables it.
	ABCDays int `yaml:"abc_days"`
}

// SHTConfig configures the temperature and humidity sensor.
type SHTConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Model             string  `yaml:"model"`
	Accuracy          string  `yaml:"accuracy"`
	TemperatureOffset float32 `yaml:"temperature_offset"`
}

// SGP41Config configures the gas sensor.
type SGP41Config struct {
	Enabled bool `yaml:"enabled"`
	// Learning offsets in hours for the VOC and NOx index algorithms.
	TVOCLearningOffset int `yaml:"tvoc_learning_offset"`
	NOxLearningOffset  int `yaml:"nox_learning_offset"`
}

// CorrectionConfig holds the PM2.5, temperature and humidity corrections.
type CorrectionConfig struct {
	PM          correction.PMCorrection      `yaml:"pm"`
	Temperature correction.TempHumCorrection `yaml:"temperature"`
	Humidity    correction.TempHumCorrection `yaml:"humidity"`
}

// DisplayConfig selects presentation units.
type DisplayConfig struct {
	PMStandard      PMStandard               `yaml:"pm_standard"`
	TemperatureUnit gatherer.TemperatureUnit `yaml:"temperature_unit"`
}

// GathererConfig contains polling intervals.
type GathererConfig struct {
	Interval    time.Duration `yaml:"interval"`
	AQIInterval time.Duration `yaml:"aqi_interval"`
}

// ExporterConfig configures the outputs.
type ExporterConfig struct {
	Listen     string     `yaml:"listen"`
	Prometheus bool       `yaml:"prometheus"`
	JSON       bool       `yaml:"json"`
	MQTT       MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the MQTT publisher. An empty broker disables it.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	QoS      byte          `yaml:"qos"`
	Retained bool          `yaml:"retained"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig sets the logrus level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MockConfig drives the simulated sensors used when no hardware is present.
type MockConfig struct {
	Enabled bool `yaml:"enabled"`
	// CO2 and PM25 are the centre values of the simulated readings.
	CO2         int     `yaml:"co2"`
	PM25        int     `yaml:"pm25"`
	Temperature float32 `yaml:"temperature"`
	Humidity    float32 `yaml:"humidity"`
	// Noise is the relative amplitude of the random variation.
	Noise float32 `yaml:"noise"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Model:    "agmon",
			Firmware: "dev",
		},
		Serial: SerialConfig{
			PMS:  "/dev/ttyUSB0",
			CO2:  "/dev/ttyUSB1",
			Baud: 9600,
		},
		Sensors: SensorsConfig{
			PMS: PMSConfig{
				Enabled:      true,
				Model:        pms.ModelPMS5003.String(),
				WakeInterval: 120 * time.Second,
				WarmUp:       30 * time.Second,
			},
			CO2: CO2Config{
				Model:   CO2S8,
				ABCDays: 8,
			},
			SHT: SHTConfig{
				Enabled:           true,
				Model:             sht.Auto.String(),
				Accuracy:          sht.Medium.String(),
				TemperatureOffset: -2,
			},
			SGP41: SGP41Config{
				Enabled:            false,
				TVOCLearningOffset: 12,
				NOxLearningOffset:  12,
			},
		},
		Correction: CorrectionConfig{
			PM:          correction.DefaultPMCorrection(),
			Temperature: correction.DefaultTempHumCorrection(),
			Humidity:    correction.DefaultTempHumCorrection(),
		},
		Display: DisplayConfig{
			PMStandard:      PMStandardUGM3,
			TemperatureUnit: gatherer.Celsius,
		},
		Gatherer: GathererConfig{
			Interval:    gatherer.DefaultInterval,
			AQIInterval: 15 * time.Minute,
		},
		Exporter: ExporterConfig{
			Listen:     ":9926",
			Prometheus: true,
			JSON:       true,
			MQTT: MQTTConfig{
				Topic:    "agmon",
				QoS:      0,
				Interval: time.Minute,
			},
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			CO2:         600,
			PM25:        12,
			Temperature: 23,
			Humidity:    45,
			Noise:       0.05,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. Environment overrides are
// applied last.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	} else {
		log.Debugf("config file %s not found, using defaults", filename)
	}

	cfg.ensureDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Sensors.PMS.Model == "" {
		c.Sensors.PMS.Model = def.Sensors.PMS.Model
	}
	if c.Sensors.CO2.Model == "" {
		c.Sensors.CO2.Model = def.Sensors.CO2.Model
	}
	if c.Sensors.SHT.Model == "" {
		c.Sensors.SHT.Model = def.Sensors.SHT.Model
	}
	if c.Sensors.SHT.Accuracy == "" {
		c.Sensors.SHT.Accuracy = def.Sensors.SHT.Accuracy
	}
	if c.Display.PMStandard == "" {
		c.Display.PMStandard = def.Display.PMStandard
	}
	if c.Display.TemperatureUnit == "" {
		c.Display.TemperatureUnit = def.Display.TemperatureUnit
	}
	if c.Gatherer.Interval == 0 {
		c.Gatherer.Interval = def.Gatherer.Interval
	}
	if c.Gatherer.AQIInterval == 0 {
		c.Gatherer.AQIInterval = def.Gatherer.AQIInterval
	}
	if c.Exporter.Listen == "" {
		c.Exporter.Listen = def.Exporter.Listen
	}
	if c.Exporter.MQTT.Topic == "" {
		c.Exporter.MQTT.Topic = def.Exporter.MQTT.Topic
	}
	if c.Exporter.MQTT.Interval == 0 {
		c.Exporter.MQTT.Interval = def.Exporter.MQTT.Interval
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// ApplyEnv loads envFiles (".env" when none are given) and overrides fields
// from AGMON_* variables. Missing files are ignored.
func (c *Config) ApplyEnv(envFiles ...string) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			log.Warnf("can't load %s: %s", f, err)
		}
	}

	c.Device.Serial = getEnv("DEVICE_SERIAL", c.Device.Serial)
	c.Serial.PMS = getEnv("SERIAL_PMS", c.Serial.PMS)
	c.Serial.CO2 = getEnv("SERIAL_CO2", c.Serial.CO2)
	c.I2C.Bus = getEnv("I2C_BUS", c.I2C.Bus)
	c.Sensors.PMS.Enabled = getEnvAsBool("PMS_ENABLED", c.Sensors.PMS.Enabled)
	c.Sensors.PMS.Model = getEnv("PMS_MODEL", c.Sensors.PMS.Model)
	c.Sensors.CO2.Model = getEnv("CO2_MODEL", c.Sensors.CO2.Model)
	c.Sensors.CO2.ABCDays = getEnvAsInt("ABC_DAYS", c.Sensors.CO2.ABCDays)
	c.Sensors.SHT.Enabled = getEnvAsBool("SHT_ENABLED", c.Sensors.SHT.Enabled)
	c.Sensors.SGP41.Enabled = getEnvAsBool("SGP41_ENABLED", c.Sensors.SGP41.Enabled)
	c.Display.PMStandard = PMStandard(getEnv("PM_STANDARD", string(c.Display.PMStandard)))
	c.Display.TemperatureUnit = gatherer.TemperatureUnit(getEnv("TEMPERATURE_UNIT", string(c.Display.TemperatureUnit)))
	c.Gatherer.Interval = getEnvAsDuration("INTERVAL", c.Gatherer.Interval)
	c.Exporter.Listen = getEnv("LISTEN", c.Exporter.Listen)
	c.Exporter.MQTT.Broker = getEnv("MQTT_BROKER", c.Exporter.MQTT.Broker)
	c.Exporter.MQTT.Topic = getEnv("MQTT_TOPIC", c.Exporter.MQTT.Topic)
	c.Exporter.MQTT.Username = getEnv("MQTT_USERNAME", c.Exporter.MQTT.Username)
	c.Exporter.MQTT.Password = getEnv("MQTT_PASSWORD", c.Exporter.MQTT.Password)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Mock.Enabled = getEnvAsBool("MOCK", c.Mock.Enabled)
}

// Validate checks the values that name models or units.
func (c *Config) Validate() error {
	if _, err := pms.ParseModel(c.Sensors.PMS.Model); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	switch c.Sensors.CO2.Model {
	case CO2None, CO2S8, CO2MHZ19:
	default:
		return errors.Wrapf(ErrInvalid, "co2 model %q", c.Sensors.CO2.Model)
	}
	if c.Sensors.CO2.ABCDays < 0 || c.Sensors.CO2.ABCDays*24 > s8.MaxABCPeriod {
		return errors.Wrapf(ErrInvalid, "abc days %d", c.Sensors.CO2.ABCDays)
	}
	if _, err := sht.ParseModel(c.Sensors.SHT.Model); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := sht.ParseAccuracy(c.Sensors.SHT.Accuracy); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	for name, hours := range map[string]int{"tvoc": c.Sensors.SGP41.TVOCLearningOffset, "nox": c.Sensors.SGP41.NOxLearningOffset} {
		if hours < 1 || hours > 1000 {
			return errors.Wrapf(ErrInvalid, "%s learning offset %d", name, hours)
		}
	}
	switch c.Display.PMStandard {
	case PMStandardUGM3, PMStandardUSAQI:
	default:
		return errors.Wrapf(ErrInvalid, "pm standard %q", c.Display.PMStandard)
	}
	switch c.Display.TemperatureUnit {
	case gatherer.Celsius, gatherer.Fahrenheit:
	default:
		return errors.Wrapf(ErrInvalid, "temperature unit %q", c.Display.TemperatureUnit)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if c.Exporter.MQTT.QoS > 2 {
		return errors.Wrapf(ErrInvalid, "mqtt qos %d", c.Exporter.MQTT.QoS)
	}
	return nil
}

// PMSModel returns the parsed particle sensor model.
func (c *Config) PMSModel() pms.Model {
	m, _ := pms.ParseModel(c.Sensors.PMS.Model)
	return m
}

// SHTModel returns the parsed humidity sensor model.
func (c *Config) SHTModel() sht.Model {
	m, _ := sht.ParseModel(c.Sensors.SHT.Model)
	return m
}

// SHTAccuracy returns the parsed humidity sensor accuracy.
func (c *Config) SHTAccuracy() sht.Accuracy {
	a, _ := sht.ParseAccuracy(c.Sensors.SHT.Accuracy)
	return a
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, ""))); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
