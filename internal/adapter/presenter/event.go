package presenter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

const (
	EventStage   = "trade.stage"
	EventOutcome = "trade.outcome"
)

// Event is the envelope published for every stage view and outcome. Events
// for one session share a partition key but may still be produced out of
// order; consumers order views by View.Version, see Sequencer.
type Event struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	View       *domain.StageView `json:"view,omitempty"`
	Outcome    *domain.Outcome   `json:"outcome,omitempty"`
}

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	switch {
	case ev.Type == EventStage && ev.View != nil:
	case ev.Type == EventOutcome && ev.Outcome != nil:
	default:
		return Event{}, fmt.Errorf("decode event: unexpected %q payload", ev.Type)
	}
	return ev, nil
}

// Notices renders the event as per-user messages.
func (e Event) Notices() []Notice {
	if e.Outcome != nil {
		return RenderOutcome(*e.Outcome)
	}
	if e.View != nil {
		return RenderView(*e.View)
	}
	return nil
}
