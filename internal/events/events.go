// Package events carries assignment change notifications between the API and watching clients.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Change kinds.
const (
	AssignmentCreated   = "assignment.created"
	AssignmentUpdated   = "assignment.updated"
	AssignmentDeleted   = "assignment.deleted"
	AssignmentSubmitted = "assignment.submitted"
	SubmissionGraded    = "submission.graded"
)

// AssignmentChanged describes one write to an assignment document.
type AssignmentChanged struct {
	Type         string    `json:"type"`
	AssignmentID string    `json:"assignment_id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	ClassID      string    `json:"class_id,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	Version      int64     `json:"version"`
	Source       string    `json:"source"`
	SentAt       time.Time `json:"sent_at"`
}

// Publisher announces assignment changes.
type Publisher interface {
	Publish(ctx context.Context, event AssignmentChanged) error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, AssignmentChanged) error { return nil }

// Encode serialises an event for the wire.
func Encode(event AssignmentChanged) ([]byte, error) {
	if event.Type == "" || event.AssignmentID == "" {
		return nil, errors.New("event type and assignment id are required")
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	return json.Marshal(event)
}

// Decode parses an event received from the wire.
func Decode(payload []byte) (AssignmentChanged, error) {
	var event AssignmentChanged
	if err := json.Unmarshal(payload, &event); err != nil {
		return AssignmentChanged{}, fmt.Errorf("invalid assignment event: %w", err)
	}
	if event.Type == "" || event.AssignmentID == "" {
		return AssignmentChanged{}, errors.New("invalid assignment event: missing type or assignment id")
	}
	return event, nil
}

// Connect dials the NATS server at url.
func Connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats url must not be empty")
	}
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}

// NATSPublisher publishes events on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	source  string
	logger  zerolog.Logger
}

// NewNATSPublisher builds a publisher. Source tags every event so a process can ignore its own.
func NewNATSPublisher(conn *nats.Conn, subject, source string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		source:  source,
		logger:  logger.With().Str("component", "assignment_events").Logger(),
	}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, event AssignmentChanged) error {
	if event.Source == "" {
		event.Source = p.source
	}
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.logger.Debug().Str("type", event.Type).Str("assignment_id", event.AssignmentID).Msg("assignment event published")
	return nil
}

// Subscribe delivers decoded events from subject to handle until ctx is done. Malformed
// payloads are logged and skipped.
func Subscribe(ctx context.Context, conn *nats.Conn, subject string, logger zerolog.Logger, handle func(AssignmentChanged)) error {
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		event, err := Decode(msg.Data)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping assignment event")
			return
		}
		handle(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			logger.Warn().Err(err).Msg("failed to drain assignment event subscription")
		}
	}()
	return nil
}
