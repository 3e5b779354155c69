// Package correction holds the calibration formulas applied to raw sensor
// values. All functions are pure. Compensation uses float32 arithmetic so
// results match the firmware running on microcontrollers without double
// precision FPUs. The live AQI table is the one place evaluated in float64.
package correction

// CompensatePM25 applies the EPA 2021 correction for PMS5003 sensors.
// Humidity is clamped to 0..100 and negative results are clamped to 0.
//
// Reference: https://www.airgradient.com/documentation/correction-algorithms/
func CompensatePM25(pm25, humidity float32) float32 {
	if humidity < 0 {
		humidity = 0
	}
	if humidity > 100 {
		humidity = 100
	}
	if pm25 == 0 {
		return 0
	}

	var value float32
	switch {
	case pm25 < 30:
		value = pm25*0.524 - humidity*0.0862 + 5.75
	case pm25 < 50:
		w := pm25*0.05 - 1.5
		value = (0.786*w+0.524*(1-w))*pm25 - 0.0862*humidity + 5.75
	case pm25 < 210:
		value = 0.786*pm25 - 0.0862*humidity + 5.75
	case pm25 < 260:
		w := pm25*0.02 - 4.2
		value = (0.69*w+0.786*(1-w))*pm25 -
			0.0862*humidity*(1-w) +
			2.966*w +
			5.75*(1-w) +
			8.84e-4*pm25*pm25*w
	default:
		value = 2.966 + 0.69*pm25 + 8.84e-4*pm25*pm25
	}

	if value < 0 {
		value = 0
	}
	return value
}

// SLRLimit is the upper bound of the low concentration regime handled by
// SLRCorrection.
const SLRLimit = 31

// SLRCorrection estimates PM2.5 from the 0.3 µm particle count with a simple
// linear regression. The estimate is used only below SLRLimit, otherwise the
// uncorrected pm25 is returned. Negative results are clamped to 0.
//
// Formula: pm25' = scalingFactor * pm003Count + intercept
func SLRCorrection(pm25, pm003Count, scalingFactor, intercept float32) float32 {
	value := scalingFactor*pm003Count + intercept
	if value >= SLRLimit {
		value = pm25
	}
	if value < 0 {
		value = 0
	}
	return value
}

// CompensateTemperature corrects the temperature reported by a PMS5003T.
func CompensateTemperature(t float32) float32 {
	if t < 10 {
		return t*1.327 - 6.738
	}
	return t*1.181 - 5.113
}

// CompensateHumidity corrects the humidity reported by a PMS5003T, capped at
// 100 %.
func CompensateHumidity(h float32) float32 {
	h = h*1.259 + 7.34
	if h > 100 {
		h = 100
	}
	return h
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float32) float32 {
	return c*1.8 + 32
}
