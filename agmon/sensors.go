package main

import (
	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/config"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/pms"
	"github.com/itohio/agmon/pkg/sensors"
	"github.com/pkg/errors"
)

// addSensors registers the sensors enabled in cfg. The PMS5003T yields its
// temperature and humidity to a dedicated SHT when both are present.
func addSensors(g *gatherer.Gatherer, cfg *config.Config, h *hardware, c clock.Clock) error {
	if err := g.Add(sensors.NewBootTime(c), gatherer.None); err != nil {
		return err
	}

	if cfg.Sensors.SHT.Enabled {
		s := sensors.NewSHT(h.bus, cfg.SHTModel(), cfg.SHTAccuracy(), cfg.Sensors.SHT.TemperatureOffset, c)
		if err := g.Add(s, gatherer.None); err != nil {
			return err
		}
	}

	if cfg.Sensors.PMS.Enabled {
		p := sensors.NewPMS(h.pms, c, sensors.PMSConfig{
			Model:        cfg.PMSModel(),
			DutyCycle:    cfg.Sensors.PMS.DutyCycle,
			WakeInterval: cfg.Sensors.PMS.WakeInterval,
			WarmUp:       cfg.Sensors.PMS.WarmUp,
		})
		exclude := gatherer.None
		if cfg.PMSModel() == pms.ModelPMS5003T && cfg.Sensors.SHT.Enabled {
			exclude = gatherer.Temperature | gatherer.Humidity
		}
		if err := g.Add(p, exclude); err != nil {
			return err
		}
	}

	switch cfg.Sensors.CO2.Model {
	case config.CO2S8:
		if err := g.Add(sensors.NewS8(h.co2, c, cfg.Sensors.CO2.ABCDays), gatherer.None); err != nil {
			return err
		}
	case config.CO2MHZ19:
		if err := g.Add(sensors.NewMHZ19(h.co2, c, cfg.Sensors.CO2.ABCDays > 0), gatherer.None); err != nil {
			return err
		}
	case config.CO2None:
	default:
		return errors.Wrapf(config.ErrInvalid, "co2 model %q", cfg.Sensors.CO2.Model)
	}

	if cfg.Sensors.SGP41.Enabled {
		gas := sensors.NewSGP41(h.bus, c, sensors.SGP41Config{
			SamplingInterval:   g.Interval(),
			TVOCLearningOffset: cfg.Sensors.SGP41.TVOCLearningOffset,
			NOxLearningOffset:  cfg.Sensors.SGP41.NOxLearningOffset,
		})
		if err := g.Add(gas, gatherer.None); err != nil {
			return err
		}
	}
	return nil
}
