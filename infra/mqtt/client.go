// Package mqtt publishes scheduling progress to an MQTT broker and accepts
// abort commands on a control topic.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/yatrik/scheduler/core/events"
	coremon "github.com/yatrik/scheduler/core/monitoring"
	"github.com/yatrik/scheduler/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker       string      `json:"broker"`
	ClientID     string      `json:"client_id"`
	Username     string      `json:"username"`
	Password     string      `json:"password"`
	TopicPrefix  string      `json:"topic_prefix"`
	ControlTopic string      `json:"control_topic"`
	UseTLS       bool        `json:"use_tls"`
	ClientCert   string      `json:"client_cert"`
	ClientKey    string      `json:"client_key"`
	CABundle     string      `json:"ca_bundle"`
	AuthMethod   string      `json:"auth_method"`
	QoS          byte        `json:"qos"`
	RetainFinal  bool        `json:"retain_final"`
	LWTTopic     string      `json:"lwt_topic"`
	LWTPayload   string      `json:"lwt_payload"`
	LWTQoS       byte        `json:"lwt_qos"`
	LWTRetain    bool        `json:"lwt_retain"`
	MaxRetries   int         `json:"max_retries"`
	BackoffMS    int         `json:"backoff_ms"`
	TLSConfig    *tls.Config `json:"-"`
}

// SetDefaults fills the topic prefix, client id and retry settings.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "yatrik/schedule"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientID == "" {
		c.ClientID = "yatrik-scheduler-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// ProgressPublisher forwards progress envelopes to
// <prefix>/<run_id>/<event>.
type ProgressPublisher struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu      sync.Mutex
	onAbort func() bool
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewProgressPublisher connects to the broker. When a control topic is
// configured it is subscribed on every (re)connect.
func NewProgressPublisher(cfg Config) (*ProgressPublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_progress")
	p := &ProgressPublisher{cfg: cfg, logger: log}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if cfg.ControlTopic == "" {
			return
		}
		if token := c.Subscribe(cfg.ControlTopic, cfg.QoS, p.onControl); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// OnAbort registers the function invoked when an abort command arrives on
// the control topic.
func (p *ProgressPublisher) OnAbort(fn func() bool) {
	p.mu.Lock()
	p.onAbort = fn
	p.mu.Unlock()
}

func (p *ProgressPublisher) onControl(_ paho.Client, msg paho.Message) {
	var m struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode control message: %v", err)
		return
	}
	if m.Action != "abort" {
		p.logger.Warnf("ignoring control action %q", m.Action)
		return
	}
	p.mu.Lock()
	fn := p.onAbort
	p.mu.Unlock()
	if fn == nil {
		return
	}
	if fn() {
		p.logger.Infof("abort requested over MQTT")
	} else {
		p.logger.Infof("abort requested over MQTT but no run is active")
	}
}

// Topic returns the topic an envelope is published on.
func (p *ProgressPublisher) Topic(env events.Envelope) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, env.RunID, env.Event)
}

// Send publishes env, retrying with exponential backoff until the context
// expires or the retry budget is spent.
func (p *ProgressPublisher) Send(ctx context.Context, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	topic := p.Topic(env)
	retain := p.cfg.RetainFinal && env.Event == (events.RunFinished{}).Name()

	publish := func() error {
		token := p.cli.Publish(topic, p.cfg.QoS, retain, payload)
		select {
		case <-token.Done():
			return token.Error()
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		}
	}
	notify := func(err error, d time.Duration) {
		p.logger.Errorf("publish to %s failed: %v; retrying in %s", topic, err, d)
	}
	if err := backoff.RetryNotify(publish, p.newBackOff(ctx), notify); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "run_id": env.RunID, "event": env.Event})
		return err
	}
	return nil
}

func (p *ProgressPublisher) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(p.cfg.BackoffMS) * time.Millisecond
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.cfg.MaxRetries)), ctx)
}

// Close gracefully closes the MQTT connection.
func (p *ProgressPublisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
