package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/agentmesh/agentmesh/internal/dispatcher"
	"github.com/agentmesh/agentmesh/internal/message"
)

// Publisher implements dispatcher.Broadcaster over an MQTT broker
// connection managed by autopaho: autopaho.ConnectionManager supplies
// reconnect-with-backoff, and Publish is a thin wrapper translating a
// FilterPrefix into a topic.
var _ dispatcher.Broadcaster = (*Publisher)(nil)

type Publisher struct {
	brokerURL string
	clientID  string
	logger    *slog.Logger
	cm        *autopaho.ConnectionManager
}

// NewPublisher creates a Publisher but does not connect. Call
// [Publisher.Start] before using Publish. A nil logger is replaced
// with slog.Default.
func NewPublisher(brokerURL, clientID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{brokerURL: brokerURL, clientID: clientID, logger: logger}
}

// Start connects to the broker, retrying with backoff in the
// background via autopaho. It returns once the initial connection
// attempt completes or times out; a failed initial attempt does not
// prevent Start from returning, since autopaho keeps retrying and a
// broker, unlike a bound socket, may come up after this process
// starts.
func (p *Publisher) Start(ctx context.Context) error {
	u, err := url.Parse(p.brokerURL)
	if err != nil {
		return fmt.Errorf("mqtt publisher: parse broker url: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt publisher connected", "broker", p.brokerURL)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt publisher connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID,
		},
	}
	if u.Scheme == "mqtts" || u.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt publisher: connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt publisher: initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

// Publish implements dispatcher.Broadcaster: body is sent at QoS 0
// (best-effort, no delivery guarantee) to the topic derived from
// prefix.
func (p *Publisher) Publish(ctx context.Context, prefix message.FilterPrefix, body []byte) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher: not started")
	}
	_, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topicFor(prefix),
		Payload: body,
		QoS:     0,
	})
	if err != nil {
		return fmt.Errorf("mqtt publisher: publish to %s: %w", topicFor(prefix), err)
	}
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	return p.cm.Disconnect(ctx)
}
