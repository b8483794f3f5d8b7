package demo

import (
	"log/slog"

	"github.com/agentmesh/agentmesh/internal/agentsystem"
	"github.com/agentmesh/agentmesh/internal/message"
)

// ObserverSystemID and SubjectSystemID name the two systems the
// walkthrough wires together.
const (
	SubjectSystemID  message.SystemId = 0
	ObserverSystemID message.SystemId = 1
)

// Subject emits an incrementing event to a fixed observer agent every
// tick.
type Subject struct {
	id    message.AgentId
	event uint8
}

func (s *Subject) ID() message.AgentId      { return s.id }
func (s *Subject) SetID(id message.AgentId) { s.id = id }
func (s *Subject) IsDead() bool             { return false }

func (s *Subject) HandleMessage(*message.Envelope[Protocol]) {
	// Subjects only emit; an unsolicited message is simply ignored.
}

func (s *Subject) Act() []message.Envelope[Protocol] {
	s.event++
	return []message.Envelope[Protocol]{
		message.New(message.Inform, message.ToAgent(ObserverSystemID, 0), 0, 1, Protocol{Event: s.event}),
	}
}

// SubjectFactory spawns Subject agents.
type SubjectFactory struct{}

func (SubjectFactory) Create(id message.AgentId) agentsystem.Agent[Protocol] {
	return &Subject{id: id}
}

// Observer logs every event it receives.
type Observer struct {
	id     message.AgentId
	logger *slog.Logger
}

func (o *Observer) ID() message.AgentId      { return o.id }
func (o *Observer) SetID(id message.AgentId) { o.id = id }
func (o *Observer) IsDead() bool             { return false }

func (o *Observer) HandleMessage(m *message.Envelope[Protocol]) {
	switch m.Performative {
	case message.Inform:
		o.logger.Info("observer received event", "event", m.Content.Event, "from", m.Sender)
	default:
		o.logger.Warn("observer received unexpected performative", "performative", m.Performative)
	}
}

func (o *Observer) Act() []message.Envelope[Protocol] { return nil }

// ObserverFactory spawns Observer agents bound to logger.
type ObserverFactory struct {
	Logger *slog.Logger
}

func (f ObserverFactory) Create(id message.AgentId) agentsystem.Agent[Protocol] {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{id: id, logger: logger}
}
