// Package mqtt implements the game-server bridge over MQTT. Outbound
// it publishes dispatch orders and alert broadcasts; inbound it
// receives unit location, status and panic events from game clients.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	corebridge "github.com/openrp/cad/core/bridge"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT bridge.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Prefix returns the topic prefix, defaulting to "cad".
func (c Config) Prefix() string {
	if c.TopicPrefix == "" {
		return "cad"
	}
	return strings.TrimSuffix(c.TopicPrefix, "/")
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoBridge implements the core bridge interface using Eclipse Paho.
type PahoBridge struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu         sync.Mutex
	ackChans   map[string]chan struct{}
	onLocation func(corebridge.LocationReport)
	onStatus   func(corebridge.StatusReport)
	onPanic    func(corebridge.PanicSignal)
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoBridge connects to the MQTT broker and subscribes to the
// game-client topics.
func NewPahoBridge(cfg Config) (*PahoBridge, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_bridge")
	b := &PahoBridge{
		cfg:      cfg,
		logger:   log,
		ackChans: make(map[string]chan struct{}),
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		subs := map[string]paho.MessageHandler{
			b.topic("orders/ack"):       b.onAck,
			b.topic("units/+/location"): b.onLocationMsg,
			b.topic("units/+/status"):   b.onStatusMsg,
			b.topic("units/+/panic"):    b.onPanicMsg,
		}
		for t, h := range subs {
			if token := c.Subscribe(t, b.qos("inbound"), h); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", t, token.Error())
			}
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
	b.cli = c
	return b, nil
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

// LoadTLSConfig loads the TLS configuration from the file paths in the
// config.
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

func (b *PahoBridge) topic(suffix string) string {
	return b.cfg.Prefix() + "/" + suffix
}

func (b *PahoBridge) qos(kind string) byte {
	if q, ok := b.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

// unitFromTopic extracts the unit id from "<prefix>/units/<id>/<leaf>".
func unitFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

func (b *PahoBridge) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		b.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	b.mu.Lock()
	ch, ok := b.ackChans[m.OrderID]
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		b.logger.Infof("received ack %s", m.OrderID)
	}
	b.mu.Unlock()
}

func (b *PahoBridge) onLocationMsg(_ paho.Client, msg paho.Message) {
	var m struct {
		X    *float64 `json:"x"`
		Y    *float64 `json:"y"`
		Text string   `json:"text"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		b.logger.Errorf("failed to decode location: %v", err)
		return
	}
	var loc *model.Location
	if m.X != nil && m.Y != nil {
		loc = model.NewCoordinate(*m.X, *m.Y)
	} else if m.Text != "" {
		loc = model.NewAddress(m.Text)
	} else {
		return
	}
	b.mu.Lock()
	h := b.onLocation
	b.mu.Unlock()
	if h != nil {
		h(corebridge.LocationReport{UnitID: unitFromTopic(msg.Topic()), Location: loc, Time: time.Now().UTC()})
	}
}

func (b *PahoBridge) onStatusMsg(_ paho.Client, msg paho.Message) {
	var m struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		b.logger.Errorf("failed to decode status: %v", err)
		return
	}
	status, err := model.ParseUnitStatus(m.Status)
	if err != nil {
		b.logger.Warnf("status report: %v", err)
		return
	}
	b.mu.Lock()
	h := b.onStatus
	b.mu.Unlock()
	if h != nil {
		h(corebridge.StatusReport{UnitID: unitFromTopic(msg.Topic()), Status: status, Time: time.Now().UTC()})
	}
}

func (b *PahoBridge) onPanicMsg(_ paho.Client, msg paho.Message) {
	b.mu.Lock()
	h := b.onPanic
	b.mu.Unlock()
	if h != nil {
		h(corebridge.PanicSignal{UnitID: unitFromTopic(msg.Topic()), Time: time.Now().UTC()})
	}
}

// SendDispatchOrder publishes an assignment order to the unit's topic
// and returns the order identifier used for acknowledgment tracking.
func (b *PahoBridge) SendDispatchOrder(unitID, callID string, loc *model.Location) (string, error) {
	orderID := uuid.NewString()
	order := struct {
		OrderID   string `json:"order_id"`
		UnitID    string `json:"unit_id"`
		CallID    string `json:"call_id"`
		Location  string `json:"location,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}{
		OrderID:   orderID,
		UnitID:    unitID,
		CallID:    callID,
		Location:  loc.String(),
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	// Register the ack channel before publishing so an immediate ack
	// is not lost.
	b.mu.Lock()
	b.ackChans[orderID] = make(chan struct{}, 1)
	b.mu.Unlock()

	topic := b.topic("units/" + unitID + "/order")
	if err := b.publishWithRetry(topic, b.qos("order"), payload); err != nil {
		b.mu.Lock()
		delete(b.ackChans, orderID)
		b.mu.Unlock()
		return "", err
	}
	b.logger.Infof("sent order %s to %s", orderID, topic)

	return orderID, nil
}

// BroadcastAlert publishes the alert on the shared alert topic.
func (b *PahoBridge) BroadcastAlert(a model.Alert) error {
	payload, err := json.Marshal(struct {
		AlertID    string `json:"alert_id"`
		Kind       string `json:"kind"`
		UnitID     string `json:"unit_id,omitempty"`
		Department string `json:"department"`
		Location   string `json:"location,omitempty"`
		Reason     string `json:"reason,omitempty"`
		Priority   string `json:"priority"`
		Timestamp  int64  `json:"timestamp"`
	}{
		AlertID:    a.ID,
		Kind:       a.Kind.String(),
		UnitID:     a.UnitID,
		Department: a.Department.String(),
		Location:   a.Location.String(),
		Reason:     a.Reason,
		Priority:   a.Priority.String(),
		Timestamp:  a.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return b.publishWithRetry(b.topic("alerts"), b.qos("alert"), payload)
}

func (b *PahoBridge) publishWithRetry(topic string, qos byte, payload []byte) error {
	maxRetries := b.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := time.Duration(b.cfg.BackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		token := b.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		b.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// WaitForAck blocks until an ACK for the given order ID is received or
// the timeout expires.
func (b *PahoBridge) WaitForAck(orderID string, timeout time.Duration) (bool, error) {
	b.mu.Lock()
	ch := b.ackChans[orderID]
	b.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown order")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		b.mu.Lock()
		delete(b.ackChans, orderID)
		b.mu.Unlock()
		return true, nil
	case <-timer.C:
		b.mu.Lock()
		delete(b.ackChans, orderID)
		b.mu.Unlock()
		return false, fmt.Errorf("%w", corebridge.ErrAckTimeout)
	}
}

// OnLocation registers the inbound location handler.
func (b *PahoBridge) OnLocation(h func(corebridge.LocationReport)) {
	b.mu.Lock()
	b.onLocation = h
	b.mu.Unlock()
}

// OnStatus registers the inbound status handler.
func (b *PahoBridge) OnStatus(h func(corebridge.StatusReport)) {
	b.mu.Lock()
	b.onStatus = h
	b.mu.Unlock()
}

// OnPanic registers the inbound panic handler.
func (b *PahoBridge) OnPanic(h func(corebridge.PanicSignal)) {
	b.mu.Lock()
	b.onPanic = h
	b.mu.Unlock()
}

// Close gracefully disconnects from the broker.
func (b *PahoBridge) Close() {
	if b.cli != nil && b.cli.IsConnected() {
		b.cli.Disconnect(250)
	}
}
