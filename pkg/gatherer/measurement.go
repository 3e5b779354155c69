package gatherer

import "strings"

// Measurement is a set of quantities a sensor produces.
type Measurement uint16

const (
	Particle Measurement = 1 << iota
	CO2
	Temperature
	Humidity
	BootTime
	TVOC
	NOx

	None Measurement = 0
)

var measurementNames = []struct {
	m    Measurement
	name string
}{
	{Particle, "particle"},
	{CO2, "co2"},
	{Temperature, "temperature"},
	{Humidity, "humidity"},
	{BootTime, "boot_time"},
	{TVOC, "tvoc"},
	{NOx, "nox"},
}

// Has reports whether all of other is in m.
func (m Measurement) Has(other Measurement) bool {
	return m&other == other
}

func (m Measurement) String() string {
	if m == None {
		return "none"
	}
	var parts []string
	for _, n := range measurementNames {
		if m&n.m != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
