package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/agmon/pkg/aqi"
	"github.com/itohio/agmon/pkg/clock"
	"github.com/itohio/agmon/pkg/config"
	"github.com/itohio/agmon/pkg/correction"
	"github.com/itohio/agmon/pkg/exporter"
	"github.com/itohio/agmon/pkg/gatherer"
	"github.com/itohio/agmon/pkg/uart"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated sensors instead of hardware")
		listenFlag = flag.String("listen", "", "HTTP listen address override (e.g., :9926)")
		portsFlag  = flag.Bool("ports", false, "List serial ports and exit")
	)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *portsFlag {
		listPorts()
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mockFlag {
		cfg.Mock.Enabled = true
	}
	if *listenFlag != "" {
		cfg.Exporter.Listen = *listenFlag
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	if cfg.Device.Serial == "" {
		cfg.Device.Serial = exporter.NewSerial()
		log.Infof("Generated device serial %s", cfg.Device.Serial)
		if err := cfg.Save(*configFlag); err != nil {
			log.Warnf("Failed to persist device serial: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
	log.Info("Stopped")
}

// run wires the sensors to the exporters and blocks until ctx is done or a
// component fails.
func run(ctx context.Context, cfg *config.Config) error {
	var (
		h   *hardware
		err error
	)
	if cfg.Mock.Enabled {
		h = simulateHardware(cfg, clock.Real{})
	} else if h, err = openHardware(cfg); err != nil {
		return err
	}
	defer h.Close()

	g := gatherer.New(cfg.Gatherer.Interval)
	if err := addSensors(g, cfg, h, clock.Real{}); err != nil {
		return err
	}
	log.Infof("Sensors: %v providing %v", g.Sensors(), g.Claimed())

	calc := aqi.NewCalculator(func() (float32, bool) {
		s := g.Snapshot()
		return float32(s.PM25), correction.ValidPM(float32(s.PM25))
	})
	calc.SetInterval(cfg.Gatherer.AQIInterval)

	g.OnUpdate(func(s gatherer.Snapshot) {
		logSnapshot(cfg, s)
	})

	device := exporter.Device{
		Serial:   cfg.Device.Serial,
		Firmware: cfg.Device.Firmware,
		Model:    cfg.Device.Model,
	}
	opts := exporter.Options{
		PM:          cfg.Correction.PM,
		Temperature: cfg.Correction.Temperature,
		Humidity:    cfg.Correction.Humidity,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return g.Run(ctx) })
	group.Go(func() error { return calc.Run(ctx) })

	if cfg.Exporter.Prometheus || cfg.Exporter.JSON {
		mux := newMux(cfg, g.Snapshot, device, opts, calc.AQI)
		group.Go(func() error { return serve(ctx, cfg.Exporter.Listen, mux) })
	}

	if mq := cfg.Exporter.MQTT; mq.Broker != "" {
		o := exporter.MQTTOptions{
			Broker:   mq.Broker,
			ClientID: mq.ClientID,
			Username: mq.Username,
			Password: mq.Password,
			Topic:    mq.Topic,
			QoS:      mq.QoS,
			Retained: mq.Retained,
			Interval: mq.Interval,
		}
		p := exporter.NewPublisher(exporter.NewMQTTClient(o), o, g.Snapshot, device, opts)
		group.Go(func() error { return p.Run(ctx) })
	}

	return group.Wait()
}

// logSnapshot prints the values the way the display would show them.
func logSnapshot(cfg *config.Config, s gatherer.Snapshot) {
	fields := log.Fields{}
	if correction.ValidCO2(s.CO2) {
		fields["co2"] = s.CO2
	}
	if v, ok := s.CorrectedPM25(cfg.Correction.PM); ok {
		if cfg.Display.PMStandard == config.PMStandardUSAQI {
			fields["pm25_aqi"] = correction.PM25ToUSAQI(v)
		} else {
			fields["pm25"] = v
		}
	}
	if t, ok := s.TemperatureIn(cfg.Display.TemperatureUnit); ok {
		fields["temperature"] = fmt.Sprintf("%.1f%s", t, cfg.Display.TemperatureUnit)
	}
	if correction.ValidHumidity(s.Humidity) {
		fields["humidity"] = s.Humidity
	}
	if correction.ValidIndex(s.TVOCRaw) {
		fields["voc_raw"] = s.TVOCRaw
	}
	if correction.ValidIndex(s.NOxRaw) {
		fields["nox_raw"] = s.NOxRaw
	}
	log.WithFields(fields).Debug("measurements")
}

func listPorts() {
	ports, err := uart.Ports()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
}
