package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/port"
)

// settleTimeout bounds store lookups made outside a caller's request.
const settleTimeout = 5 * time.Second

type pairKey struct{ a, b string }

// newPairKey is order-independent so A->B and B->A share one slot.
func newPairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// TradeService owns every live negotiation. Sessions for different pairs run
// independently; operations on one session are serialized by its mutex.
type TradeService struct {
	inventory port.InventoryRepository
	executor  *Executor
	presenter port.Presenter
	logger    *zap.Logger
	timeouts  StageTimeouts
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	pairs    map[pairKey]string
	closed   atomic.Bool
}

func NewTradeService(
	inventory port.InventoryRepository,
	executor *Executor,
	presenter port.Presenter,
	timeouts StageTimeouts,
	logger *zap.Logger,
) *TradeService {
	return &TradeService{
		inventory: inventory,
		executor:  executor,
		presenter: presenter,
		logger:    logger,
		timeouts:  timeouts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		pairs:     make(map[pairKey]string),
	}
}

// Start opens a negotiation. A second session for the same pair, in either
// direction, is rejected until the first one ends.
func (s *TradeService) Start(ctx context.Context, initiatorID, recipientID string) (domain.StageView, error) {
	if initiatorID == "" || recipientID == "" {
		return domain.StageView{}, fmt.Errorf("%w: missing participant", domain.ErrInvalidSelection)
	}
	if initiatorID == recipientID {
		return domain.StageView{}, domain.ErrSelfTrade
	}

	key := newPairKey(initiatorID, recipientID)
	sess := newSession(uuid.New().String(), uuid.New().String(), initiatorID, recipientID, s.timeouts, s.now)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return domain.StageView{}, domain.ErrShutdown
	}
	if existing, ok := s.pairs[key]; ok {
		s.mu.Unlock()
		return domain.StageView{}, fmt.Errorf("%w: session %s", domain.ErrSessionExists, existing)
	}
	s.sessions[sess.id] = sess
	s.pairs[key] = sess.id
	sess.mu.Lock()
	s.mu.Unlock()

	s.arm(sess)
	view := sess.view()
	sess.mu.Unlock()

	s.logger.Info("trade session started",
		zap.String("session_id", sess.id),
		zap.String("initiator", initiatorID),
		zap.String("recipient", recipientID),
	)
	s.publish(ctx, view, nil)
	return view, nil
}

// SelectItem records the caller's item, or nothing when itemID is empty,
// after checking it against a live inventory read.
func (s *TradeService) SelectItem(ctx context.Context, sessionID, userID, itemID string) (domain.StageView, error) {
	return s.do(ctx, sessionID, userID, func(sess *Session, party domain.Party) error {
		ev := event{kind: evSelect, party: party, itemID: itemID}
		if itemID != "" && sess.stage.IsSelecting() {
			held, err := s.inventory.GetHolding(ctx, userID, itemID)
			if err != nil {
				return fmt.Errorf("%w: read holding: %w", domain.ErrStoreUnavailable, err)
			}
			ev.held = held
		}
		_, err := sess.apply(ev)
		return err
	})
}

// ProposeQuantity sets how many of the selected item the caller gives. The
// amount is checked against a fresh read, not the one taken at selection.
func (s *TradeService) ProposeQuantity(ctx context.Context, sessionID, userID string, quantity int) (domain.StageView, error) {
	return s.do(ctx, sessionID, userID, func(sess *Session, party domain.Party) error {
		ev := event{kind: evPropose, party: party, quantity: quantity}
		if itemID := sess.selectedItem(party); itemID != "" && sess.stage == domain.StageAwaitingQuantities && quantity > 0 {
			held, err := s.inventory.GetHolding(ctx, userID, itemID)
			if err != nil {
				return fmt.Errorf("%w: read holding: %w", domain.ErrStoreUnavailable, err)
			}
			ev.held = held
		}
		_, err := sess.apply(ev)
		return err
	})
}

// Confirm is the recipient's acceptance. It runs the executor while holding
// the session, so a concurrent timeout or cancel observes the final outcome.
// ErrStoreUnavailable leaves the session awaiting confirmation for a retry,
// and a later abort first asks the store whether that attempt landed.
func (s *TradeService) Confirm(ctx context.Context, sessionID, userID string) (domain.StageView, error) {
	return s.do(ctx, sessionID, userID, func(sess *Session, party domain.Party) error {
		commit, err := sess.apply(event{kind: evConfirm, party: party})
		if err != nil || !commit {
			return err
		}

		initiatorOffer, recipientOffer := sess.offers()
		record, err := s.executor.Commit(ctx, sess.tradeID, sess.initiatorID, sess.recipientID, initiatorOffer, recipientOffer)
		switch {
		case err == nil:
			sess.commitUnknown = false
			_, err = sess.apply(event{kind: evCommitted, record: record})
			return err
		case errors.Is(err, domain.ErrStoreUnavailable):
			sess.commitUnknown = true
			return err
		case errors.Is(err, domain.ErrStaleOffer):
			if _, applyErr := sess.apply(event{kind: evStale}); applyErr != nil {
				return errors.Join(err, applyErr)
			}
			return err
		}
		return err
	})
}

func (s *TradeService) Decline(ctx context.Context, sessionID, userID string) (domain.StageView, error) {
	return s.do(ctx, sessionID, userID, func(sess *Session, party domain.Party) error {
		return s.abortUnlessCommitted(ctx, sess, event{kind: evDecline, party: party})
	})
}

// Cancel lets either participant withdraw before the trade commits.
func (s *TradeService) Cancel(ctx context.Context, sessionID, userID string) (domain.StageView, error) {
	return s.do(ctx, sessionID, userID, func(sess *Session, party domain.Party) error {
		return s.abortUnlessCommitted(ctx, sess, event{kind: evCancel, party: party})
	})
}

// Get returns the current view to a participant.
func (s *TradeService) Get(ctx context.Context, sessionID, userID string) (domain.StageView, error) {
	sess, _, err := s.lookup(sessionID, userID)
	if err != nil {
		return domain.StageView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.stage.IsTerminal() {
		return domain.StageView{}, domain.ErrSessionNotFound
	}
	return sess.view(), nil
}

// ActiveSessions reports how many negotiations are open.
func (s *TradeService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops every timer and aborts open sessions with ReasonShutdown.
// Start fails with ErrShutdown afterwards.
func (s *TradeService) Close() {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return
	}
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		s.mutate(ctx, sess, func() error {
			err := s.abortUnlessCommitted(ctx, sess, event{kind: evShutdown})
			if errors.Is(err, domain.ErrStoreUnavailable) {
				s.disarm(sess)
				s.logger.Error("trade left open at shutdown, commit outcome unknown",
					zap.String("session_id", sess.id),
					zap.String("trade_id", sess.tradeID),
					zap.Error(err),
				)
			}
			return err
		})
		cancel()
	}
	s.logger.Info("trade service closed", zap.Int("aborted_sessions", len(open)))
}

func (s *TradeService) lookup(sessionID, userID string) (*Session, domain.Party, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, "", domain.ErrSessionNotFound
	}
	party, ok := sess.partyOf(userID)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrNotParticipant, userID)
	}
	return sess, party, nil
}

func (s *TradeService) do(ctx context.Context, sessionID, userID string, op func(*Session, domain.Party) error) (domain.StageView, error) {
	sess, party, err := s.lookup(sessionID, userID)
	if err != nil {
		return domain.StageView{}, err
	}
	view, opErr := s.mutate(ctx, sess, func() error { return op(sess, party) })
	if opErr != nil {
		s.logger.Debug("trade operation rejected",
			zap.String("session_id", sessionID),
			zap.String("user", userID),
			zap.String("party", string(party)),
			zap.Error(opErr),
		)
	}
	return view, opErr
}

// mutate runs op under the session lock, re-arms the stage timer, evicts the
// session when it reaches a terminal stage and publishes after unlocking.
func (s *TradeService) mutate(ctx context.Context, sess *Session, op func() error) (domain.StageView, error) {
	sess.mu.Lock()
	version, generation := sess.version, sess.generation
	opErr := op()
	changed := sess.version != version
	view := sess.view()
	var outcome *domain.Outcome
	if sess.generation != generation {
		if sess.stage.IsTerminal() {
			o := sess.outcome()
			outcome = &o
			s.disarm(sess)
		} else {
			s.arm(sess)
		}
	}
	sess.mu.Unlock()

	if outcome != nil {
		s.evict(sess)
		s.logger.Info("trade session finished",
			zap.String("session_id", sess.id),
			zap.String("stage", string(outcome.Stage)),
			zap.String("reason", string(outcome.Reason)),
		)
	}
	if changed {
		s.publish(ctx, view, outcome)
	}
	return view, opErr
}

// arm replaces the stage timer. Caller holds sess.mu.
func (s *TradeService) arm(sess *Session) {
	s.disarm(sess)
	d := s.timeouts.For(sess.stage)
	if d <= 0 {
		return
	}
	gen := sess.generation
	sess.timer = time.AfterFunc(d, func() { s.expire(sess, gen) })
}

func (s *TradeService) disarm(sess *Session) {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
}

func (s *TradeService) expire(sess *Session, gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	s.mutate(ctx, sess, func() error {
		if gen != sess.generation {
			return nil
		}
		err := s.abortUnlessCommitted(ctx, sess, event{kind: evExpire, gen: gen})
		if errors.Is(err, domain.ErrStoreUnavailable) {
			s.logger.Warn("expiry postponed, commit outcome unknown",
				zap.String("session_id", sess.id),
				zap.String("trade_id", sess.tradeID),
				zap.Error(err),
			)
			if !s.closed.Load() {
				s.arm(sess)
			}
		}
		return err
	})
}

// abortUnlessCommitted applies an aborting event. After a commit attempt
// with no definite answer the store decides first: a stored record commits
// the session, a store error keeps it open. Caller holds sess.mu.
func (s *TradeService) abortUnlessCommitted(ctx context.Context, sess *Session, ev event) error {
	if sess.commitUnknown && sess.stage == domain.StageAwaitingConfirmation {
		record, err := s.executor.Lookup(ctx, sess.tradeID)
		if err != nil {
			return err
		}
		sess.commitUnknown = false
		if record != nil {
			if _, err := sess.apply(event{kind: evCommitted, record: record}); err != nil {
				return err
			}
			return fmt.Errorf("%w: trade %s already committed", domain.ErrWrongStage, record.ID)
		}
	}
	_, err := sess.apply(ev)
	return err
}

func (s *TradeService) evict(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	key := newPairKey(sess.initiatorID, sess.recipientID)
	if s.pairs[key] == sess.id {
		delete(s.pairs, key)
	}
}

func (s *TradeService) publish(ctx context.Context, view domain.StageView, outcome *domain.Outcome) {
	if s.presenter == nil {
		return
	}
	if err := s.presenter.Present(ctx, view); err != nil {
		s.logger.Warn("present stage failed", zap.String("session_id", view.SessionID), zap.Error(err))
	}
	if outcome == nil {
		return
	}
	if err := s.presenter.NotifyOutcome(ctx, *outcome); err != nil {
		s.logger.Error("notify outcome failed", zap.String("session_id", outcome.SessionID), zap.Error(err))
	}
}
