// Package telemetry publishes session events and periodic heartbeats to an
// MQTT broker.
package telemetry

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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/util"
)

// Topic suffixes appended to the configured prefix.
const (
	TopicShots     = "shots"
	TopicScores    = "scores"
	TopicStatus    = "status"
	TopicLifecycle = "lifecycle"
	TopicHeartbeat = "heartbeat"
	TopicAdmin     = "admin"
)

// QoS used for every publish.
const QoS = 1

// sendFunc delivers an encoded message to a topic.
type sendFunc func(topic string, data []byte) error

// MQTTHandler forwards bus events to MQTT topics as JSON messages.
type MQTTHandler struct {
	mu sync.Mutex

	prefix   string
	client   mqtt.Client
	send     sendFunc
	metadata map[string]interface{}
	logger   zerolog.Logger
	sent     int
}

// NewMQTTHandler builds a handler from the mqtt config section. The client
// is not connected until Start.
func NewMQTTHandler(cfg config.MQTTConfig, version string) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("slingshot-%s", sysInfo.Hostname))
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	h := newHandler(cfg.TopicPrefix, metadataFor(sysInfo, version), nil)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	h.send = h.publishClient
	return h, nil
}

func newHandler(prefix string, metadata map[string]interface{}, send sendFunc) *MQTTHandler {
	if prefix == "" {
		prefix = "slingshot"
	}
	return &MQTTHandler{
		prefix:   strings.TrimSuffix(prefix, "/"),
		send:     send,
		metadata: metadata,
		logger:   log.With().Str("component", "mqtt").Logger(),
	}
}

func metadataFor(info util.SystemInfo, version string) map[string]interface{} {
	return map[string]interface{}{
		"hostname":    info.Hostname,
		"os":          info.OS,
		"cpu_model":   info.CPUModel,
		"cpu_cores":   info.CPUCores,
		"memory_mb":   info.TotalMemory,
		"app_version": version,
	}
}

func brokerURL(cfg config.MQTTConfig) string {
	if strings.Contains(cfg.BrokerURL, "://") {
		return cfg.BrokerURL
	}
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port)
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Attach subscribes the handler to every event on bus.
func (h *MQTTHandler) Attach(bus *events.Bus) {
	bus.SubscribeAll("mqtt", h.handle)
}

// Start connects to the broker and blocks until ctx is cancelled, then
// publishes a shutdown notice and disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().Str("topic_prefix", h.prefix).Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

func (h *MQTTHandler) publishClient(topic string, data []byte) error {
	if !h.client.IsConnected() {
		return nil
	}
	token := h.client.Publish(topic, QoS, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
	return nil
}

// Topic returns the full topic an event type is published on.
func (h *MQTTHandler) Topic(t events.EventType) string {
	switch t {
	case events.EventShotFired:
		return h.topic(TopicShots)
	case events.EventScoreUpdated:
		return h.topic(TopicScores)
	case events.EventStatusObserved, events.EventLevelLoaded, events.EventLevelRestarted:
		return h.topic(TopicStatus)
	}
	return h.topic(TopicLifecycle)
}

func (h *MQTTHandler) topic(suffix string) string {
	return h.prefix + "/" + suffix
}

func (h *MQTTHandler) handle(_ context.Context, e events.Event) error {
	return h.publish(h.Topic(e.Type), string(e.Type), e.Payload)
}

// publish wraps payload with the host metadata and sends it.
func (h *MQTTHandler) publish(topic, event string, payload interface{}) error {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal MQTT message for %s: %w", topic, err)
	}
	if err := h.send(topic, data); err != nil {
		return err
	}

	h.mu.Lock()
	h.sent++
	h.mu.Unlock()
	return nil
}

// Sent returns how many messages were handed to the broker client.
func (h *MQTTHandler) Sent() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent
}

// PublishShutdown sends a shutdown notice on the admin topic.
func (h *MQTTHandler) PublishShutdown() {
	if err := h.publish(h.topic(TopicAdmin), "shutdown", nil); err != nil {
		h.logger.Warn().Err(err).Msg("failed to publish shutdown")
	}
}
