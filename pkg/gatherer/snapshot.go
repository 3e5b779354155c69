package gatherer

import (
	"time"

	"github.com/itohio/agmon/pkg/correction"
)

// TemperatureUnit selects how temperatures are reported.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "c"
	Fahrenheit TemperatureUnit = "f"
)

// Snapshot is the last known value of every quantity. Unavailable values hold
// the correction.Invalid* sentinels.
type Snapshot struct {
	CO2 int `json:"rco2"`

	// Atmospheric environment concentrations in µg/m³.
	PM01 int `json:"pm01"`
	PM25 int `json:"pm02"`
	PM10 int `json:"pm10"`
	// Standard particle (CF=1) concentrations in µg/m³.
	PM01Standard int `json:"pm01Standard"`
	PM25Standard int `json:"pm02Standard"`
	PM10Standard int `json:"pm10Standard"`
	// Particle counts per 0.1 L.
	PM003Count int `json:"pm003Count"`
	PM005Count int `json:"pm005Count"`
	PM01Count  int `json:"pm01Count"`
	PM25Count  int `json:"pm02Count"`
	PM50Count  int `json:"pm50Count"`
	PM10Count  int `json:"pm10Count"`

	TVOC    int `json:"tvocIndex"`
	TVOCRaw int `json:"tvocRaw"`
	NOx     int `json:"noxIndex"`
	NOxRaw  int `json:"noxRaw"`

	Temperature float32 `json:"atmp"`
	Humidity    float32 `json:"rhum"`

	BootTime time.Time `json:"-"`
	Updated  time.Time `json:"-"`
}

// NewSnapshot returns a snapshot with every value invalid.
func NewSnapshot() Snapshot {
	return Snapshot{
		CO2:          correction.InvalidCO2,
		PM01:         correction.InvalidPM,
		PM25:         correction.InvalidPM,
		PM10:         correction.InvalidPM,
		PM01Standard: correction.InvalidPM,
		PM25Standard: correction.InvalidPM,
		PM10Standard: correction.InvalidPM,
		PM003Count:   correction.InvalidPM,
		PM005Count:   correction.InvalidPM,
		PM01Count:    correction.InvalidPM,
		PM25Count:    correction.InvalidPM,
		PM50Count:    correction.InvalidPM,
		PM10Count:    correction.InvalidPM,
		TVOC:         correction.InvalidIndex,
		TVOCRaw:      correction.InvalidIndex,
		NOx:          correction.InvalidIndex,
		NOxRaw:       correction.InvalidIndex,
		Temperature:  correction.InvalidTemperature,
		Humidity:     correction.InvalidHumidity,
	}
}

// merge copies the fields produced by m from src.
func (s *Snapshot) merge(src *Snapshot, m Measurement) {
	if m.Has(Particle) {
		s.PM01, s.PM25, s.PM10 = src.PM01, src.PM25, src.PM10
		s.PM01Standard, s.PM25Standard, s.PM10Standard = src.PM01Standard, src.PM25Standard, src.PM10Standard
		s.PM003Count, s.PM005Count, s.PM01Count = src.PM003Count, src.PM005Count, src.PM01Count
		s.PM25Count, s.PM50Count, s.PM10Count = src.PM25Count, src.PM50Count, src.PM10Count
	}
	if m.Has(CO2) {
		s.CO2 = src.CO2
	}
	if m.Has(Temperature) {
		s.Temperature = src.Temperature
	}
	if m.Has(Humidity) {
		s.Humidity = src.Humidity
	}
	if m.Has(BootTime) {
		s.BootTime = src.BootTime
	}
	if m.Has(TVOC) {
		s.TVOC, s.TVOCRaw = src.TVOC, src.TVOCRaw
	}
	if m.Has(NOx) {
		s.NOx, s.NOxRaw = src.NOx, src.NOxRaw
	}
}

// CorrectedPM25 applies c to the atmospheric PM2.5. ok is false when PM2.5 is
// invalid, or when the algorithm needs humidity and it is invalid.
func (s Snapshot) CorrectedPM25(c correction.PMCorrection) (pm25 float32, ok bool) {
	raw := float32(s.PM25)
	if !correction.ValidPM(raw) {
		return 0, false
	}
	needsHumidity := c.Algorithm == correction.AlgorithmEPA2021 ||
		(c.Algorithm == correction.AlgorithmSLRCustom && c.UseEPA)
	if needsHumidity && !correction.ValidHumidity(s.Humidity) {
		return 0, false
	}
	return correction.CorrectPM25(raw, s.Humidity, float32(s.PM003Count), c), true
}

// USAQI converts the atmospheric PM2.5 to US AQI.
func (s Snapshot) USAQI() (int, bool) {
	raw := float32(s.PM25)
	if !correction.ValidPM(raw) {
		return 0, false
	}
	return correction.PM25ToUSAQI(raw), true
}

// TemperatureIn returns the temperature in the requested unit.
func (s Snapshot) TemperatureIn(unit TemperatureUnit) (float32, bool) {
	if !correction.ValidTemperature(s.Temperature) {
		return 0, false
	}
	if unit == Fahrenheit {
		return correction.CelsiusToFahrenheit(s.Temperature), true
	}
	return s.Temperature, true
}
