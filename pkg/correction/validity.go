package correction

// Sentinels marking a quantity as unavailable.
const (
	InvalidTemperature float32 = -1000
	InvalidHumidity    float32 = -1
	InvalidPM          int     = -1
	InvalidCO2         int     = -1
	InvalidIndex       int     = -1
)

// ValidTemperature reports whether t is a plausible reading in °C.
func ValidTemperature(t float32) bool {
	return t >= -40 && t <= 125
}

// ValidHumidity reports whether h is a plausible relative humidity.
func ValidHumidity(h float32) bool {
	return h >= 0 && h <= 100
}

// ValidPM reports whether pm is a plausible concentration in µg/m³.
func ValidPM(pm float32) bool {
	return pm >= 0 && pm <= 1000
}

// ValidCO2 reports whether ppm is a plausible CO2 concentration.
func ValidCO2(ppm int) bool {
	return ppm >= 0 && ppm <= 10000
}

// ValidIndex reports whether a VOC/NOx index or raw signal is set.
func ValidIndex(v int) bool {
	return v >= 0
}
