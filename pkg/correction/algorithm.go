package correction

import (
	"strings"

	"github.com/pkg/errors"
)

// Algorithm selects how PM2.5 is corrected.
type Algorithm int

const (
	AlgorithmUnknown Algorithm = iota
	AlgorithmNone
	AlgorithmEPA2021
	// AlgorithmSLRCustom covers every "slr_PMS5003_<batch>" regression.
	AlgorithmSLRCustom
)

var ErrUnknownAlgorithm = errors.New("correction: unknown algorithm")

const slrPrefix = "slr_PMS5003"

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmEPA2021:
		return "epa_2021"
	case AlgorithmSLRCustom:
		return "custom"
	}
	return "-"
}

// ParseAlgorithm maps a configured algorithm name. Batch regressions named
// slr_PMS5003_xxxxxxxx map to AlgorithmSLRCustom.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch {
	case s == "none":
		return AlgorithmNone, nil
	case s == "epa_2021":
		return AlgorithmEPA2021, nil
	case s == "custom", strings.HasPrefix(s, slrPrefix):
		return AlgorithmSLRCustom, nil
	}
	return AlgorithmUnknown, errors.Wrapf(ErrUnknownAlgorithm, "%q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(b []byte) error {
	v, err := ParseAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// PMCorrection configures CorrectPM25.
type PMCorrection struct {
	Algorithm     Algorithm `yaml:"algorithm" json:"correctionAlgorithm"`
	ScalingFactor float32   `yaml:"scaling_factor" json:"scalingFactor"`
	Intercept     float32   `yaml:"intercept" json:"intercept"`
	// UseEPA applies CompensatePM25 on top of the SLR result.
	UseEPA bool `yaml:"use_epa" json:"useEpa2021"`
}

// DefaultPMCorrection leaves PM2.5 uncorrected.
func DefaultPMCorrection() PMCorrection {
	return PMCorrection{Algorithm: AlgorithmNone, ScalingFactor: 1}
}

// CorrectPM25 applies the configured correction to a raw PM2.5 value.
// Unknown and None leave the value unchanged.
func CorrectPM25(pm25, humidity, pm003Count float32, c PMCorrection) float32 {
	switch c.Algorithm {
	case AlgorithmEPA2021:
		return CompensatePM25(pm25, humidity)
	case AlgorithmSLRCustom:
		v := SLRCorrection(pm25, pm003Count, c.ScalingFactor, c.Intercept)
		if c.UseEPA {
			v = CompensatePM25(v, humidity)
		}
		return v
	}
	return pm25
}

// TempHumAlgorithm selects how temperature or humidity is corrected.
type TempHumAlgorithm int

const (
	TempHumUnknown TempHumAlgorithm = iota
	TempHumNone
	// TempHumPMS5003T2024 applies CompensateTemperature or CompensateHumidity.
	TempHumPMS5003T2024
	TempHumSLRCustom
)

func (a TempHumAlgorithm) String() string {
	switch a {
	case TempHumNone:
		return "none"
	case TempHumPMS5003T2024:
		return "ag_pms5003t_2024"
	case TempHumSLRCustom:
		return "custom"
	}
	return "-"
}

// ParseTempHumAlgorithm maps a configured temperature/humidity algorithm name.
func ParseTempHumAlgorithm(s string) (TempHumAlgorithm, error) {
	for _, a := range []TempHumAlgorithm{TempHumNone, TempHumPMS5003T2024, TempHumSLRCustom} {
		if a.String() == s {
			return a, nil
		}
	}
	return TempHumUnknown, errors.Wrapf(ErrUnknownAlgorithm, "%q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a TempHumAlgorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *TempHumAlgorithm) UnmarshalText(b []byte) error {
	v, err := ParseTempHumAlgorithm(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// TempHumCorrection configures CorrectTemperature and CorrectHumidity.
type TempHumCorrection struct {
	Algorithm     TempHumAlgorithm `yaml:"algorithm" json:"correctionAlgorithm"`
	ScalingFactor float32          `yaml:"scaling_factor" json:"scalingFactor"`
	Intercept     float32          `yaml:"intercept" json:"intercept"`
}

// DefaultTempHumCorrection leaves values uncorrected.
func DefaultTempHumCorrection() TempHumCorrection {
	return TempHumCorrection{Algorithm: TempHumNone, ScalingFactor: 1}
}

// CorrectTemperature applies c to a temperature in °C.
func CorrectTemperature(t float32, c TempHumCorrection) float32 {
	switch c.Algorithm {
	case TempHumPMS5003T2024:
		return CompensateTemperature(t)
	case TempHumSLRCustom:
		return t*c.ScalingFactor + c.Intercept
	}
	return t
}

// CorrectHumidity applies c to a relative humidity, keeping it in 0..100.
func CorrectHumidity(h float32, c TempHumCorrection) float32 {
	switch c.Algorithm {
	case TempHumPMS5003T2024:
		return CompensateHumidity(h)
	case TempHumSLRCustom:
		h = h*c.ScalingFactor + c.Intercept
		if h > 100 {
			h = 100
		}
		if h < 0 {
			h = 0
		}
	}
	return h
}
