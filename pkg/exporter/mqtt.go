package exporter

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMQTTInterval = time.Minute
	DefaultMQTTTimeout  = 10 * time.Second

	disconnectQuiesce = 250
)

var ErrMQTTTimeout = errors.New("mqtt: operation timed out")

// MQTTClient is the part of mqtt.Client used by Publisher.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures the publisher.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retained bool
	Interval time.Duration
	Timeout  time.Duration
}

func (o MQTTOptions) withDefaults() MQTTOptions {
	if o.ClientID == "" {
		o.ClientID = "agmon-" + NewSerial()
	}
	if o.Interval <= 0 {
		o.Interval = DefaultMQTTInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultMQTTTimeout
	}
	return o
}

// NewMQTTClient creates a paho client with automatic reconnects.
func NewMQTTClient(o MQTTOptions) mqtt.Client {
	o = o.withDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(o.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnf("mqtt connection lost: %s", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Infof("mqtt connected to %s", o.Broker)
		})
	return mqtt.NewClient(opts)
}

// Publisher periodically publishes the measurement document.
type Publisher struct {
	client MQTTClient
	opts   MQTTOptions
	source Source
	device Device
	corr   Options
}

// NewPublisher creates a publisher. Payloads go to <topic>/<serial>.
func NewPublisher(client MQTTClient, o MQTTOptions, src Source, d Device, corr Options) *Publisher {
	return &Publisher{
		client: client,
		opts:   o.withDefaults(),
		source: src,
		device: d,
		corr:   corr,
	}
}

// Topic returns the topic payloads are published to.
func (p *Publisher) Topic() string {
	return p.opts.Topic + "/" + p.device.Serial
}

func (p *Publisher) wait(t mqtt.Token) error {
	if !t.WaitTimeout(p.opts.Timeout) {
		return ErrMQTTTimeout
	}
	return t.Error()
}

// Connect connects to the broker.
func (p *Publisher) Connect() error {
	if err := p.wait(p.client.Connect()); err != nil {
		return errors.Wrapf(err, "mqtt connect %s", p.opts.Broker)
	}
	return nil
}

// Publish sends the current snapshot once.
func (p *Publisher) Publish() error {
	payload, err := json.Marshal(Payload(p.source(), p.device, p.corr, false))
	if err != nil {
		return errors.Wrap(err, "mqtt payload")
	}
	if err := p.wait(p.client.Publish(p.Topic(), p.opts.QoS, p.opts.Retained, payload)); err != nil {
		return errors.Wrapf(err, "mqtt publish %s", p.Topic())
	}
	return nil
}

// Run connects and publishes every interval until ctx is done. Publish
// failures are logged and retried on the next tick. A broker that does not
// answer in time is retried in the background by the client.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Connect(); err != nil {
		if !errors.Is(err, ErrMQTTTimeout) {
			return err
		}
		log.Warnf("%s, retrying in background", err)
	}
	defer p.client.Disconnect(disconnectQuiesce)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Publish(); err != nil {
				log.Errorf("%s", err)
				continue
			}
			log.Debugf("published to %s", p.Topic())
		}
	}
}
