package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/ProbeFlow/internal/adapters/codec"
	"github.com/ghalamif/ProbeFlow/internal/domain"
	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// UploadTopic is appended to the prefix for payloads drained from the spool.
const UploadTopic = "upload"

type Config struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Codec       string        `yaml:"codec"`
	QoS         byte          `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Publisher sends records to an MQTT broker, one message per record on
// <prefix>/<probe>. It is both a BatchWriter and a spool Transport.
type Publisher struct {
	client paho.Client
	cfg    Config
	codec  codec.Codec
	obs    ports.Observability
}

// Connect dials the broker and returns a Publisher over the new client.
func Connect(cfg Config, obs ports.Observability) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if obs == nil {
		return nil, errors.New("mqtt: observability is required")
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		obs.LogInfo("mqtt_connected", ports.Field{Key: "broker", Value: cfg.Broker})
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		obs.LogError("mqtt_connection_lost", err, ports.Field{Key: "broker", Value: cfg.Broker})
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeoutOrDefault(cfg.Timeout)) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return NewPublisher(client, cfg, obs)
}

// NewPublisher wraps an existing client.
func NewPublisher(client paho.Client, cfg Config, obs ports.Observability) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("mqtt: client is required")
	}
	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "probeflow"
	}
	cfg.Timeout = timeoutOrDefault(cfg.Timeout)
	return &Publisher{client: client, cfg: cfg, codec: c, obs: obs}, nil
}

func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the topic records of probe are published on.
func (p *Publisher) Topic(probe string) string {
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/") + "/" + probe
}

func (p *Publisher) WriteBatch(recs []domain.Record) error {
	var errs []error
	for _, rec := range recs {
		payload, err := p.codec.Encode(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("mqtt encode %s: %w", rec.ProbeName(), err))
			continue
		}
		if err := p.publish(p.Topic(rec.ProbeName()), payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Upload publishes an already encoded spool file.
func (p *Publisher) Upload(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.publish(p.Topic(UploadTopic), payload); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

var _ ports.BatchWriter = (*Publisher)(nil)
