package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

type capturePublisher struct {
	mu     sync.Mutex
	keys   []string
	events [][]byte
	err    error
}

func (c *capturePublisher) Publish(ctx context.Context, key string, event any) error {
	if c.err != nil {
		return c.err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.events = append(c.events, data)
	return nil
}

func confirmationView() domain.StageView {
	return domain.StageView{
		SessionID:   "s-1",
		InitiatorID: "ash",
		RecipientID: "misty",
		Stage:       domain.StageAwaitingConfirmation,
		Version:     5,
		Initiator:   domain.SideView{Selected: true, ItemID: "charizard", Quantity: 1, Finalized: true},
		Recipient:   domain.SideView{Selected: true, ItemID: "pikachu", Quantity: 2, Finalized: true},
	}
}

func committedOutcome(t *testing.T) domain.Outcome {
	t.Helper()
	give, err := domain.NewOffer(domain.PartyInitiator, "charizard", 1)
	require.NoError(t, err)
	take, err := domain.NewOffer(domain.PartyRecipient, "pikachu", 2)
	require.NoError(t, err)
	return domain.Outcome{
		SessionID:   "s-1",
		InitiatorID: "ash",
		RecipientID: "misty",
		Stage:       domain.StageCommitted,
		Record: &domain.TradeRecord{
			ID: "t-1", InitiatorID: "ash", RecipientID: "misty",
			InitiatorOffer: give, RecipientOffer: take,
			CommittedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestRenderView(t *testing.T) {
	selecting := domain.StageView{
		InitiatorID: "ash", RecipientID: "misty",
		Stage:     domain.StageSelectingRecipientItem,
		Initiator: domain.SideView{Selected: true, ItemID: "charizard"},
	}
	notices := RenderView(selecting)
	require.Len(t, notices, 2)
	assert.Equal(t, Notice{UserID: "ash", Text: "Waiting for misty."}, notices[0])
	assert.Equal(t, "misty", notices[1].UserID)
	assert.Contains(t, notices[1].Text, "Pick an item")

	notices = RenderView(confirmationView())
	require.Len(t, notices, 2)
	assert.Equal(t, "ash offers 1 x charizard for your 2 x pikachu. Confirm or decline.", notices[1].Text)
	assert.Contains(t, notices[0].Text, "waiting on misty")

	gift := confirmationView()
	gift.Recipient = domain.SideView{Selected: true, Finalized: true}
	assert.Contains(t, RenderView(gift)[1].Text, "for your nothing")

	assert.Empty(t, RenderView(domain.StageView{Stage: domain.StageAborted}))
}

func TestRenderOutcome(t *testing.T) {
	notices := RenderOutcome(committedOutcome(t))
	require.Len(t, notices, 2)
	assert.Equal(t, notices[0].Text, notices[1].Text)
	assert.Contains(t, notices[0].Text, "t-1")

	declined := RenderOutcome(domain.Outcome{
		InitiatorID: "ash", RecipientID: "misty",
		Stage: domain.StageAborted, Reason: domain.ReasonDeclined,
	})
	assert.Equal(t, domain.ReasonDeclined.Message(), declined[0].Text)
}

func TestKafkaPresenter_PublishesDecodableEvents(t *testing.T) {
	pub := &capturePublisher{}
	p := NewKafkaPresenter(pub)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, p.Present(ctx, confirmationView()))
	require.NoError(t, p.NotifyOutcome(ctx, committedOutcome(t)))

	require.Len(t, pub.events, 2)
	assert.Equal(t, []string{"s-1", "s-1"}, pub.keys)

	stage, err := DecodeEvent(pub.events[0])
	require.NoError(t, err)
	assert.Equal(t, EventStage, stage.Type)
	assert.Equal(t, 5, stage.View.Version)
	assert.Len(t, stage.Notices(), 2)

	outcome, err := DecodeEvent(pub.events[1])
	require.NoError(t, err)
	assert.Equal(t, EventOutcome, outcome.Type)
	require.NotNil(t, outcome.Outcome.Record)
	assert.Equal(t, 2, outcome.Outcome.Record.RecipientOffer.Quantity())
	assert.Equal(t, RenderOutcome(committedOutcome(t)), outcome.Notices())
}

func TestKafkaPresenter_WrapsPublishErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPresenter(&capturePublisher{err: boom})

	err := p.Present(context.Background(), confirmationView())
	assert.ErrorIs(t, err, boom)
}

func TestDecodeEvent_RejectsMismatchedPayload(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"trade.outcome","session_id":"s-1"}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestLogPresenter_LogsEveryNotice(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPresenter(zap.New(core))

	require.NoError(t, p.Present(context.Background(), confirmationView()))
	require.NoError(t, p.NotifyOutcome(context.Background(), domain.Outcome{
		SessionID: "s-1", InitiatorID: "ash", RecipientID: "misty",
		Stage: domain.StageAborted, Reason: domain.ReasonTimeout,
	}))

	assert.Equal(t, 4, logs.Len())
	timeouts := logs.FilterField(zap.String("reason", "timeout"))
	assert.Equal(t, 2, timeouts.Len())
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	ok := &capturePublisher{}
	m := Multi{NewKafkaPresenter(&capturePublisher{err: boom}), NewKafkaPresenter(ok)}

	err := m.Present(context.Background(), confirmationView())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.events, 1, "a failing presenter does not stop the others")
	assert.NoError(t, Multi{NewKafkaPresenter(ok)}.NotifyOutcome(context.Background(), committedOutcome(t)))
}

func TestSequencer_DropsStaleViewsAndLateEvents(t *testing.T) {
	seq := NewSequencer(time.Minute)
	view := func(version int, stage domain.Stage) Event {
		return Event{Type: EventStage, SessionID: "s-1", View: &domain.StageView{SessionID: "s-1", Stage: stage, Version: version}}
	}
	outcome := Event{Type: EventOutcome, SessionID: "s-1", Outcome: &domain.Outcome{SessionID: "s-1", Stage: domain.StageAborted, Reason: domain.ReasonTimeout}}

	assert.True(t, seq.Accept(view(1, domain.StageSelectingInitiatorItem)))
	assert.True(t, seq.Accept(view(3, domain.StageAborted)))
	assert.False(t, seq.Accept(view(2, domain.StageSelectingRecipientItem)), "older view after a newer one")
	assert.False(t, seq.Accept(view(3, domain.StageAborted)), "redelivered view")
	assert.True(t, seq.Accept(outcome))
	assert.False(t, seq.Accept(outcome), "one outcome per session")
	assert.False(t, seq.Accept(view(4, domain.StageAborted)), "nothing after the outcome")

	other := view(1, domain.StageSelectingInitiatorItem)
	other.SessionID = "s-2"
	assert.True(t, seq.Accept(other), "sessions are tracked independently")
}

func TestSequencer_ForgetsIdleSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seq := NewSequencer(time.Minute)
	seq.now = func() time.Time { return now }

	done := Event{Type: EventOutcome, SessionID: "s-1", Outcome: &domain.Outcome{SessionID: "s-1"}}
	require.True(t, seq.Accept(done))

	now = now.Add(2 * time.Minute)
	seq.Accept(Event{Type: EventOutcome, SessionID: "s-2", Outcome: &domain.Outcome{SessionID: "s-2"}})
	assert.NotContains(t, seq.sessions, "s-1")
	assert.Contains(t, seq.sessions, "s-2")
}
