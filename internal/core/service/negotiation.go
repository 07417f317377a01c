package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

// StageTimeouts bounds how long a session may wait in each non-terminal stage.
type StageTimeouts struct {
	Selection    time.Duration
	Quantity     time.Duration
	Confirmation time.Duration
}

func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Selection:    2 * time.Minute,
		Quantity:     2 * time.Minute,
		Confirmation: 5 * time.Minute,
	}
}

func (t StageTimeouts) For(stage domain.Stage) time.Duration {
	switch stage {
	case domain.StageSelectingInitiatorItem, domain.StageSelectingRecipientItem:
		return t.Selection
	case domain.StageAwaitingQuantities:
		return t.Quantity
	case domain.StageAwaitingConfirmation:
		return t.Confirmation
	}
	return 0
}

type eventKind int

const (
	evSelect eventKind = iota
	evPropose
	evConfirm
	evDecline
	evCancel
	evExpire
	evCommitted
	evStale
	evShutdown
)

// event is the single input type of the transition function. held carries
// the live inventory read taken by the caller for select/propose events.
type event struct {
	kind     eventKind
	party    domain.Party
	itemID   string
	quantity int
	held     int
	gen      int
	record   *domain.TradeRecord
}

type side struct {
	selected bool
	itemID   string
	offer    *domain.Offer
}

// Session is the per-trade state machine. All fields are guarded by mu; the
// trade service holds mu for the whole of one operation including store reads.
type Session struct {
	mu sync.Mutex

	id          string
	tradeID     string
	initiatorID string
	recipientID string

	stage     domain.Stage
	initiator side
	recipient side

	// generation changes on every stage change and invalidates older timers;
	// version changes on every accepted mutation.
	generation int
	version    int

	reason    domain.AbortReason
	record    *domain.TradeRecord

	// commitUnknown is set when a commit attempt failed without a definite
	// answer; the store may hold the record even though the reply was lost.
	commitUnknown bool

	createdAt time.Time
	expiresAt time.Time

	timeouts StageTimeouts
	now      func() time.Time
	timer    *time.Timer
}

func newSession(id, tradeID, initiatorID, recipientID string, timeouts StageTimeouts, now func() time.Time) *Session {
	s := &Session{
		id:          id,
		tradeID:     tradeID,
		initiatorID: initiatorID,
		recipientID: recipientID,
		timeouts:    timeouts,
		now:         now,
		createdAt:   now(),
	}
	s.enter(domain.StageSelectingInitiatorItem)
	return s
}

// partyOf resolves a user id to its side. Immutable fields only, no lock needed.
func (s *Session) partyOf(userID string) (domain.Party, bool) {
	switch userID {
	case s.initiatorID:
		return domain.PartyInitiator, true
	case s.recipientID:
		return domain.PartyRecipient, true
	}
	return "", false
}

func (s *Session) side(p domain.Party) *side {
	if p == domain.PartyInitiator {
		return &s.initiator
	}
	return &s.recipient
}

func (s *Session) enter(stage domain.Stage) {
	s.stage = stage
	s.generation++
	s.version++
	if d := s.timeouts.For(stage); d > 0 {
		s.expiresAt = s.now().Add(d)
	} else if stage.IsTerminal() {
		s.expiresAt = time.Time{}
	}
}

func (s *Session) abort(reason domain.AbortReason) {
	s.reason = reason
	s.enter(domain.StageAborted)
}

// apply is the transition function. It returns commit=true when the caller
// must run the trade executor and feed the result back as evCommitted/evStale.
func (s *Session) apply(ev event) (commit bool, err error) {
	if s.stage.IsTerminal() {
		return false, domain.ErrSessionNotFound
	}

	switch ev.kind {
	case evExpire:
		if ev.gen == s.generation {
			s.abort(domain.ReasonTimeout)
		}
		return false, nil

	case evShutdown:
		s.abort(domain.ReasonShutdown)
		return false, nil

	case evCancel:
		s.abort(domain.ReasonCancelled)
		return false, nil

	case evSelect:
		if !s.stage.IsSelecting() {
			return false, fmt.Errorf("%w: %s", domain.ErrWrongStage, s.stage)
		}
		if ev.itemID != "" && ev.held < 1 {
			s.abort(domain.ReasonInvalidSelection)
			return false, fmt.Errorf("%w: %s does not hold %s", domain.ErrInvalidSelection, ev.party, ev.itemID)
		}
		sd := s.side(ev.party)
		sd.selected = true
		sd.itemID = ev.itemID
		s.version++
		return false, s.advanceSelection()

	case evPropose:
		if s.stage != domain.StageAwaitingQuantities {
			return false, fmt.Errorf("%w: %s", domain.ErrWrongStage, s.stage)
		}
		sd := s.side(ev.party)
		if sd.itemID == "" {
			if ev.quantity != 0 {
				s.abort(domain.ReasonInvalidQuantity)
				return false, fmt.Errorf("%w: %s offered nothing, quantity must be 0", domain.ErrInvalidQuantity, ev.party)
			}
			return false, nil
		}
		if ev.quantity < 1 || ev.quantity > ev.held {
			s.abort(domain.ReasonInvalidQuantity)
			return false, fmt.Errorf("%w: %d of %s (held %d)", domain.ErrInvalidQuantity, ev.quantity, sd.itemID, ev.held)
		}
		offer, err := domain.NewOffer(ev.party, sd.itemID, ev.quantity)
		if err != nil {
			s.abort(domain.ReasonInvalidQuantity)
			return false, err
		}
		sd.offer = &offer
		s.version++
		if s.initiator.offer != nil && s.recipient.offer != nil {
			s.enter(domain.StageAwaitingConfirmation)
		}
		return false, nil

	case evConfirm, evDecline:
		if ev.party != domain.PartyRecipient {
			return false, domain.ErrNotRecipient
		}
		if s.stage != domain.StageAwaitingConfirmation {
			return false, fmt.Errorf("%w: %s", domain.ErrWrongStage, s.stage)
		}
		if ev.kind == evDecline {
			s.abort(domain.ReasonDeclined)
			return false, nil
		}
		return true, nil

	case evCommitted:
		if s.stage != domain.StageAwaitingConfirmation || ev.record == nil {
			return false, fmt.Errorf("%w: %s", domain.ErrWrongStage, s.stage)
		}
		s.record = ev.record
		s.enter(domain.StageCommitted)
		return false, nil

	case evStale:
		s.abort(domain.ReasonStaleOffer)
		return false, nil
	}

	return false, fmt.Errorf("unknown event %d", ev.kind)
}

// advanceSelection recomputes the stage after a selection. Both sides may
// select in either selection stage; the stage names the first side missing.
func (s *Session) advanceSelection() error {
	switch {
	case !s.initiator.selected:
		if s.stage != domain.StageSelectingInitiatorItem {
			s.enter(domain.StageSelectingInitiatorItem)
		}
		return nil
	case !s.recipient.selected:
		if s.stage != domain.StageSelectingRecipientItem {
			s.enter(domain.StageSelectingRecipientItem)
		}
		return nil
	}

	if s.initiator.itemID == "" && s.recipient.itemID == "" {
		s.abort(domain.ReasonEmptyTrade)
		return domain.ErrEmptyTrade
	}

	for _, p := range []domain.Party{domain.PartyInitiator, domain.PartyRecipient} {
		sd := s.side(p)
		if sd.itemID == "" {
			nothing := domain.NothingOffer(p)
			sd.offer = &nothing
		}
	}
	if s.initiator.offer != nil && s.recipient.offer != nil {
		s.enter(domain.StageAwaitingConfirmation)
	} else {
		s.enter(domain.StageAwaitingQuantities)
	}
	return nil
}

func (s *Session) selectedItem(p domain.Party) string {
	return s.side(p).itemID
}

func (s *Session) offers() (domain.Offer, domain.Offer) {
	return *s.initiator.offer, *s.recipient.offer
}

func (s *Session) view() domain.StageView {
	v := domain.StageView{
		SessionID:   s.id,
		InitiatorID: s.initiatorID,
		RecipientID: s.recipientID,
		Stage:       s.stage,
		Version:     s.version,
		Initiator:   s.initiator.view(),
		Recipient:   s.recipient.view(),
		Reason:      s.reason,
		CreatedAt:   s.createdAt,
		ExpiresAt:   s.expiresAt,
	}
	if s.record != nil {
		v.TradeID = s.record.ID
	}
	return v
}

func (s *Session) outcome() domain.Outcome {
	return domain.Outcome{
		SessionID:   s.id,
		InitiatorID: s.initiatorID,
		RecipientID: s.recipientID,
		Stage:       s.stage,
		Record:      s.record,
		Reason:      s.reason,
		At:          s.now(),
	}
}

func (sd side) view() domain.SideView {
	v := domain.SideView{Selected: sd.selected, ItemID: sd.itemID}
	if sd.offer != nil {
		v.Finalized = true
		v.Quantity = sd.offer.Quantity()
	}
	return v
}
