package presenter

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

// EventPublisher is satisfied by messaging.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaPresenter publishes views and outcomes as Events keyed by session id.
type KafkaPresenter struct {
	publisher EventPublisher
	now       func() time.Time
}

func NewKafkaPresenter(publisher EventPublisher) *KafkaPresenter {
	return &KafkaPresenter{publisher: publisher, now: time.Now}
}

func (p *KafkaPresenter) Present(ctx context.Context, view domain.StageView) error {
	ev := Event{
		Type:       EventStage,
		SessionID:  view.SessionID,
		OccurredAt: p.now().UTC(),
		View:       &view,
	}
	if err := p.publisher.Publish(ctx, view.SessionID, ev); err != nil {
		return fmt.Errorf("publish %s v%d: %w", view.SessionID, view.Version, err)
	}
	return nil
}

func (p *KafkaPresenter) NotifyOutcome(ctx context.Context, outcome domain.Outcome) error {
	ev := Event{
		Type:       EventOutcome,
		SessionID:  outcome.SessionID,
		OccurredAt: p.now().UTC(),
		Outcome:    &outcome,
	}
	if err := p.publisher.Publish(ctx, outcome.SessionID, ev); err != nil {
		return fmt.Errorf("publish outcome %s: %w", outcome.SessionID, err)
	}
	return nil
}
