package exporter

import (
	"encoding/json"
	"net/http"

	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/gatherer"
	log "github.com/sirupsen/logrus"
)

// Payload builds the measurement document. Invalid values are omitted.
// Device identity is included only for local consumers.
func Payload(s gatherer.Snapshot, d Device, o Options, local bool) map[string]any {
	p := make(map[string]any)

	setPM := func(key string, v int) {
		if correction.ValidPM(float32(v)) {
			p[key] = v
		}
	}
	setPM("pm01", s.PM01)
	setPM("pm02", s.PM25)
	setPM("pm10", s.PM10)
	setPM("pm01Standard", s.PM01Standard)
	setPM("pm02Standard", s.PM25Standard)
	setPM("pm10Standard", s.PM10Standard)
	if s.PM003Count >= 0 {
		p["pm003Count"] = s.PM003Count
	}
	if s.PM005Count >= 0 {
		p["pm005Count"] = s.PM005Count
	}
	if s.PM01Count >= 0 {
		p["pm01Count"] = s.PM01Count
	}
	if s.PM25Count >= 0 {
		p["pm02Count"] = s.PM25Count
	}
	if s.PM50Count >= 0 {
		p["pm50Count"] = s.PM50Count
	}
	if s.PM10Count >= 0 {
		p["pm10Count"] = s.PM10Count
	}
	if v, ok := s.CorrectedPM25(o.PM); ok {
		p["pm02Compensated"] = round2(v)
	}

	if correction.ValidTemperature(s.Temperature) {
		p["atmp"] = round2(s.Temperature)
		p["atmpCompensated"] = round2(correction.CorrectTemperature(s.Temperature, o.Temperature))
	}
	if correction.ValidHumidity(s.Humidity) {
		p["rhum"] = round2(s.Humidity)
		p["rhumCompensated"] = round2(correction.CorrectHumidity(s.Humidity, o.Humidity))
	}

	if correction.ValidCO2(s.CO2) {
		p["rco2"] = s.CO2
	}
	if correction.ValidIndex(s.TVOC) {
		p["tvocIndex"] = s.TVOC
	}
	if correction.ValidIndex(s.TVOCRaw) {
		p["tvocRaw"] = s.TVOCRaw
	}
	if correction.ValidIndex(s.NOx) {
		p["noxIndex"] = s.NOx
	}
	if correction.ValidIndex(s.NOxRaw) {
		p["noxRaw"] = s.NOxRaw
	}

	p["boot"] = d.BootCount
	p["bootCount"] = d.BootCount
	if !s.BootTime.IsZero() {
		p["bootTime"] = s.BootTime.Unix()
	}

	if local {
		p["serialno"] = d.Serial
		p["firmware"] = d.Firmware
		p["model"] = d.Model
	}
	return p
}

// JSONHandler serves the local measurement document.
func JSONHandler(src Source, d Device, o Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Payload(src(), d, o, true)); err != nil {
			log.Errorf("can't encode measures: %s", err)
		}
	})
}
