package correction

// MaxAQI is the top of the US AQI scale.
const MaxAQI = 500

type breakpoint struct {
	cLo, cHi float64
	iLo, iHi float64
}

// usAQI2024 is the EPA PM2.5 table revised in 2024. It is evaluated in
// float64 like the firmware it replaces.
var usAQI2024 = []breakpoint{
	{0, 9.0, 0, 50},
	{9.0, 35.4, 50, 100},
	{35.4, 55.4, 100, 150},
	{55.4, 125.4, 150, 200},
	{125.4, 225.4, 200, 300},
	{225.4, 325.4, 300, 500},
}

// usAQI2012 is the EPA PM2.5 table in use before 2024. Segments start one
// tenth above the previous upper bound. It is evaluated in float32.
var usAQI2012 = []breakpoint{
	{0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// PM25ToUSAQI converts a PM2.5 concentration in µg/m³ to US AQI using the
// 2024 breakpoints. Concentrations above the table saturate at MaxAQI and
// the result is truncated toward zero.
func PM25ToUSAQI(pm25 float32) int {
	pm := float64(pm25)
	if pm < 0 {
		pm = 0
	}
	for _, b := range usAQI2024 {
		if pm <= b.cHi {
			return int((b.iHi-b.iLo)/(b.cHi-b.cLo)*(pm-b.cLo) + b.iLo)
		}
	}
	return MaxAQI
}

// PM25ToUSAQI2012 converts using the 2012 breakpoints, as used for the 24 hour
// average AQI. The result is truncated toward zero.
func PM25ToUSAQI2012(pm25 float32) int {
	if pm25 < 0 {
		pm25 = 0
	}
	for _, b := range usAQI2012 {
		cLo, cHi := float32(b.cLo), float32(b.cHi)
		if pm25 <= cHi {
			return int(float32(b.iHi-b.iLo)*(pm25-cLo)/(cHi-cLo) + float32(b.iLo))
		}
	}
	return MaxAQI
}
