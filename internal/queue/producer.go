package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/domain"
)

// Sender is the publishing side of a Connection
type Sender interface {
	Publish(ctx context.Context, exchange, routingKey string, v any) error
}

// ExerciseGenerated is the payload of KindExerciseGenerated
type ExerciseGenerated struct {
	ExerciseID string              `json:"exercise_id"`
	Type       domain.ExerciseType `json:"type"`
	Level      domain.CECRLLevel   `json:"level"`
	Difficulty float64             `json:"difficulty"`
	ConceptIDs []string            `json:"concept_ids,omitempty"`
}

// ResponseEvaluated is the payload of KindResponseEvaluated
type ResponseEvaluated struct {
	ExerciseID  string              `json:"exercise_id"`
	Type        domain.ExerciseType `json:"type"`
	Level       domain.CECRLLevel   `json:"level"`
	ConceptIDs  []string            `json:"concept_ids,omitempty"`
	Correct     bool                `json:"correct"`
	Score       float64             `json:"score"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
}

// Producer publishes coda events to EventsExchange
type Producer struct {
	sender Sender
}

// NewProducer creates a producer over a connection or any other Sender
func NewProducer(sender Sender) *Producer {
	return &Producer{sender: sender}
}

func (p *Producer) publish(ctx context.Context, kind string, payload any) error {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	if err := p.sender.Publish(ctx, EventsExchange, kind, env); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	slog.Debug("published event", "kind", kind, "event_id", env.ID)
	return nil
}

// ExerciseGenerated publishes a generation event
func (p *Producer) ExerciseGenerated(ctx context.Context, e *domain.Exercise) error {
	return p.publish(ctx, KindExerciseGenerated, ExerciseGenerated{
		ExerciseID: e.ID,
		Type:       e.Type,
		Level:      e.Level,
		Difficulty: e.Difficulty,
		ConceptIDs: e.ConceptIDs,
	})
}

// ResponseEvaluated publishes an evaluation event
func (p *Producer) ResponseEvaluated(ctx context.Context, e *domain.Exercise, _ domain.Response, res *domain.EvaluationResult) error {
	return p.publish(ctx, KindResponseEvaluated, ResponseEvaluated{
		ExerciseID:  e.ID,
		Type:        e.Type,
		Level:       e.Level,
		ConceptIDs:  e.ConceptIDs,
		Correct:     res.Correct,
		Score:       res.Score,
		EvaluatedAt: res.EvaluatedAt,
	})
}

// PublishEvolution publishes a learner's evolution
func (p *Producer) PublishEvolution(ctx context.Context, n coda.Notification) error {
	return p.publish(ctx, KindCodaEvolved, n)
}

// PublishInteraction queues an interaction report for a learner
func (p *Producer) PublishInteraction(ctx context.Context, msg InteractionMessage) error {
	if err := p.sender.Publish(ctx, "", InteractionQueueName, msg); err != nil {
		return fmt.Errorf("publish interaction: %w", err)
	}
	return nil
}
