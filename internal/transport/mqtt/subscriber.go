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

	"github.com/agentmesh/agentmesh/internal/collector"
	"github.com/agentmesh/agentmesh/internal/message"
)

// Subscriber implements collector.RemoteSource over an MQTT broker
// connection. It installs the three subscription topics derived from
// a system's id (see topic.go) and feeds received frames into a
// bounded channel the owning Collector polls without blocking.
var _ collector.RemoteSource = (*Subscriber)(nil)

type Subscriber struct {
	systemID    message.SystemId
	brokerURL   string
	clientID    string
	logger      *slog.Logger
	frames      chan message.Frame
	rateLimiter *messageRateLimiter
	cm          *autopaho.ConnectionManager
}

// NewSubscriber creates a Subscriber for systemID but does not
// connect. Call [Subscriber.Start] before registering it with a
// Collector via AddRemoteObserver. bufSize bounds the internal frame
// channel; a full channel drops new frames, the same overflow policy
// enforced again — more tightly — by the Collector's own bounded
// inbox.
func NewSubscriber(systemID message.SystemId, brokerURL, clientID string, bufSize int, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Subscriber{
		systemID:    systemID,
		brokerURL:   brokerURL,
		clientID:    clientID,
		logger:      logger,
		frames:      make(chan message.Frame, bufSize),
		rateLimiter: newMessageRateLimiter(1000, time.Second, logger),
	}
}

// Frames implements collector.RemoteSource.
func (s *Subscriber) Frames() <-chan message.Frame { return s.frames }

// Start connects to the broker and, on every (re-)connect, installs
// this system's subscription topics, derived from the owner's own
// SystemId. autopaho does not automatically resubscribe after
// reconnection, so resubscription is driven from OnConnectionUp.
func (s *Subscriber) Start(ctx context.Context) error {
	u, err := url.Parse(s.brokerURL)
	if err != nil {
		return fmt.Errorf("mqtt subscriber: parse broker url: %w", err)
	}

	topics := subscriptionTopics(s.systemID)

	cfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info("mqtt subscriber connected", "broker", s.brokerURL, "system_id", s.systemID)
			s.subscribe(ctx, cm, topics)
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt subscriber connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.clientID,
		},
	}
	if u.Scheme == "mqtts" || u.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt subscriber: connect: %w", err)
	}
	s.cm = cm
	cm.AddOnPublishReceived(s.onPublishReceived)

	go s.rateLimiter.start(ctx)

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		s.logger.Warn("mqtt subscriber: initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

func (s *Subscriber) subscribe(ctx context.Context, cm *autopaho.ConnectionManager, topics []string) {
	opts := make([]paho.SubscribeOptions, 0, len(topics))
	for _, t := range topics {
		opts = append(opts, paho.SubscribeOptions{Topic: t, QoS: 0})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		s.logger.Error("mqtt subscribe failed", "error", err, "topics", topics)
	} else {
		s.logger.Info("mqtt subscribed", "topics", topics)
	}
}

func (s *Subscriber) onPublishReceived(pr autopaho.PublishReceived) (bool, error) {
	if !s.rateLimiter.allow() {
		return true, nil
	}

	prefix, err := parseTopic(pr.Packet.Topic)
	if err != nil {
		s.logger.Error("mqtt subscriber: drop frame with unrecognized topic", "topic", pr.Packet.Topic, "error", err)
		return true, nil
	}

	frame := message.Frame{Prefix: prefix, Body: pr.Packet.Payload}
	select {
	case s.frames <- frame:
	default:
		s.logger.Log(context.Background(), levelTrace, "mqtt subscriber: frame channel full, dropping frame", "topic", pr.Packet.Topic)
	}
	return true, nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}
	return s.cm.Disconnect(ctx)
}

const levelTrace = slog.Level(-8)
