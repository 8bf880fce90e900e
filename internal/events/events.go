// Package events publishes studio lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/model"
)

// Event types.
const (
	TypeRunCompleted   = "run.completed"
	TypeActionExecuted = "action.executed"
)

// DefaultTopic is used when events.topic is unset.
const DefaultTopic = "studio.events"

// Event is one published message. Key picks the partition.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// RunCompleted is the payload of TypeRunCompleted.
type RunCompleted struct {
	RunID       string  `json:"run_id"`
	Play        string  `json:"play"`
	ActionCount int     `json:"action_count"`
	TotalImpact float64 `json:"total_impact"`
}

// ActionExecuted is the payload of TypeActionExecuted.
type ActionExecuted struct {
	ActionID   string                `json:"action_id"`
	ApprovalID string                `json:"approval_id,omitempty"`
	Status     model.ExecutionStatus `json:"status"`
	Mode       model.ExecutionKind   `json:"mode"`
	Target     string                `json:"target,omitempty"`
}

// NewRunCompleted builds the event for a finished run.
func NewRunCompleted(runID, play string, actions []model.Action, at time.Time) Event {
	var total float64
	for _, a := range actions {
		total += a.ImpactScore
	}
	return Event{
		Type:       TypeRunCompleted,
		Key:        runID,
		OccurredAt: at.UTC(),
		Data:       RunCompleted{RunID: runID, Play: play, ActionCount: len(actions), TotalImpact: total},
	}
}

// NewActionExecuted builds the event for one execution outcome.
func NewActionExecuted(ex model.Execution) Event {
	return Event{
		Type:       TypeActionExecuted,
		Key:        ex.ActionID,
		OccurredAt: ex.ExecutedAt.UTC(),
		Data: ActionExecuted{
			ActionID:   ex.ActionID,
			ApprovalID: ex.ApprovalID,
			Status:     ex.Status,
			Mode:       ex.Kind,
			Target:     ex.Target,
		},
	}
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, else a Nop.
func New(cfg config.EventsConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return NewKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
}

// Emit publishes events and logs any failure. Event delivery never fails
// the caller.
func Emit(ctx context.Context, p Publisher, events ...Event) {
	if p == nil || len(events) == 0 {
		return
	}
	if err := p.Publish(ctx, events...); err != nil {
		zap.L().Warn("events: publish failed",
			zap.String("type", events[0].Type),
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error { return nil }

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON-encoded events to a single topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher wraps w.
func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return eris.Wrapf(err, "events: marshal %s", e.Type)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.Key),
			Value:   body,
			Time:    e.OccurredAt,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(e.Type)}},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return eris.Wrap(err, "events: write messages")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return eris.Wrap(p.writer.Close(), "events: close writer")
}
