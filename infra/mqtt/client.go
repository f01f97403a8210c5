// Package mqtt publishes connector snapshots and statuses to an MQTT broker
// using Eclipse Paho.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
)

// ErrNotConnected is returned when publishing before Connect or after Close.
var ErrNotConnected = errors.New("mqtt client not connected")

const (
	defaultTopicPrefix = "ocpp"
	defaultMaxRetries  = 3
	defaultBackoffMS   = 100
	defaultConnectMS   = 10000
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker           string      `json:"broker"`
	ClientID         string      `json:"client_id"`
	Username         string      `json:"username"`
	Password         string      `json:"password"`
	TopicPrefix      string      `json:"topic_prefix"`
	QoS              byte        `json:"qos"`
	Retain           bool        `json:"retain"`
	UseTLS           bool        `json:"use_tls"`
	ClientCert       string      `json:"client_cert"`
	ClientKey        string      `json:"client_key"`
	CABundle         string      `json:"ca_bundle"`
	AuthMethod       string      `json:"auth_method"`
	LWTTopic         string      `json:"lwt_topic"`
	LWTPayload       string      `json:"lwt_payload"`
	LWTQoS           byte        `json:"lwt_qos"`
	LWTRetain        bool        `json:"lwt_retain"`
	MaxRetries       int         `json:"max_retries"`
	BackoffMS        int         `json:"backoff_ms"`
	ConnectTimeoutMS int         `json:"connect_timeout_ms"`
	TLSConfig        *tls.Config `json:"-"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.ClientID == "" {
		c.ClientID = "ocppbridge-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = defaultBackoffMS
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = defaultConnectMS
	}
}

// Validate checks for invalid fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker required")
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
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher implements telemetry.Publisher on top of Paho. The broker
// connection is owned by the caller through Connect and Close.
type Publisher struct {
	cfg     Config
	opts    *paho.ClientOptions
	logger  logger.Logger
	backoff time.Duration

	mu  sync.RWMutex
	cli pahoClient
}

// NewPublisher prepares a publisher. It does not connect.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		cfg:     cfg,
		opts:    opts,
		logger:  log,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
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
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Connect opens the broker connection.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil {
		return nil
	}
	c := newMQTTClient(p.opts)
	if err := waitToken(ctx, c.Connect(), time.Duration(p.cfg.ConnectTimeoutMS)*time.Millisecond); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.cfg.Broker, err)
	}
	p.cli = c
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	p.cli = nil
	return nil
}

// SnapshotTopic returns the topic carrying meter snapshots of a connector.
func (p *Publisher) SnapshotTopic(deviceID string, connectorID int) string {
	return fmt.Sprintf("%s/%s/%d/em", p.cfg.TopicPrefix, deviceID, connectorID)
}

// StatusTopic returns the topic carrying connector statuses.
func (p *Publisher) StatusTopic(deviceID string, connectorID int) string {
	return fmt.Sprintf("%s/%s/%d/status", p.cfg.TopicPrefix, deviceID, connectorID)
}

// PublishSnapshot sends s as JSON on the snapshot topic.
func (p *Publisher) PublishSnapshot(ctx context.Context, deviceID string, connectorID int, s model.MetricSnapshot) error {
	return p.publishJSON(ctx, p.SnapshotTopic(deviceID, connectorID), s)
}

// PublishStatus sends st as JSON on the status topic.
func (p *Publisher) PublishStatus(ctx context.Context, deviceID string, connectorID int, st model.ConnectorStatus) error {
	return p.publishJSON(ctx, p.StatusTopic(deviceID, connectorID), st)
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.RLock()
	cli := p.cli
	p.mu.RUnlock()
	if cli == nil {
		return ErrNotConnected
	}
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		publishErr = waitToken(ctx, cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload), 0)
		if publishErr == nil {
			publishSuccess.Inc()
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishFailure.Inc()
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	publishFailure.Inc()
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// waitToken waits for t to complete, ctx to end or timeout to elapse when
// positive.
func waitToken(ctx context.Context, t paho.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("timeout after %s", timeout)
	}
}
