package main

import (
	"io"

	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/config"
	"github.com/itohio/agmon/pkg/sim"
	"github.com/itohio/agmon/pkg/uart"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// hardware holds the transports the sensors talk over. Unused transports are
// nil.
type hardware struct {
	pms     io.ReadWriter
	co2     io.ReadWriter
	bus     drivers.I2C
	closers []io.Closer
}

func (h *hardware) needsI2C(cfg *config.Config) bool {
	return cfg.Sensors.SHT.Enabled || cfg.Sensors.SGP41.Enabled
}

// openHardware opens the serial ports and the I2C bus required by cfg.
func openHardware(cfg *config.Config) (*hardware, error) {
	h := &hardware{}

	openPort := func(name string) (io.ReadWriter, error) {
		port := uart.New(name, cfg.Serial.Baud, 0)
		if err := port.Connect(); err != nil {
			return nil, err
		}
		h.closers = append(h.closers, port)
		log.Infof("Opened serial port %s", name)
		return port, nil
	}

	var err error
	if cfg.Sensors.PMS.Enabled {
		if h.pms, err = openPort(cfg.Serial.PMS); err != nil {
			h.Close()
			return nil, errors.Wrap(err, "pms")
		}
	}
	if cfg.Sensors.CO2.Model != config.CO2None {
		if h.co2, err = openPort(cfg.Serial.CO2); err != nil {
			h.Close()
			return nil, errors.Wrap(err, "co2")
		}
	}

	if h.needsI2C(cfg) {
		if _, err := host.Init(); err != nil {
			h.Close()
			return nil, errors.Wrap(err, "periph host init")
		}
		bus, err := i2creg.Open(cfg.I2C.Bus)
		if err != nil {
			h.Close()
			return nil, errors.Wrapf(err, "open i2c bus %q", cfg.I2C.Bus)
		}
		h.bus = bus
		h.closers = append(h.closers, bus)
		log.Infof("Opened I2C bus %s", bus)
	}
	return h, nil
}

// simulateHardware wires simulated sensors in place of the real transports.
func simulateHardware(cfg *config.Config, c clock.Clock) *hardware {
	env := sim.NewEnvironment(cfg.Mock, c)
	h := &hardware{}

	if cfg.Sensors.PMS.Enabled {
		h.pms = sim.NewPMS(env, cfg.PMSModel()).Port()
	}
	switch cfg.Sensors.CO2.Model {
	case config.CO2S8:
		h.co2 = sim.NewS8(env).Port()
	case config.CO2MHZ19:
		h.co2 = sim.NewMHZ19(env).Port()
	}
	if h.needsI2C(cfg) {
		h.bus = sim.NewBus(env, cfg.Sensors.SGP41.Enabled)
	}
	log.Info("Using simulated sensors")
	return h
}

// Close releases every opened transport.
func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			log.Warnf("Error closing transport: %v", err)
		}
	}
	h.closers = nil
}
