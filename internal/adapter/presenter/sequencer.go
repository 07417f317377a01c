package presenter

import (
	"sync"
	"time"
)

// Sequencer restores per-session order on the consuming side. Views are
// published after the session lock is released, so two callers can deliver
// them out of order; StageView.Version is the authority.
type Sequencer struct {
	mu        sync.Mutex
	sessions  map[string]*sessionMark
	retain    time.Duration
	now       func() time.Time
	lastPrune time.Time
}

type sessionMark struct {
	version  int
	finished bool
	seen     time.Time
}

// NewSequencer forgets a session retain after its last accepted event.
func NewSequencer(retain time.Duration) *Sequencer {
	return &Sequencer{
		sessions: make(map[string]*sessionMark),
		retain:   retain,
		now:      time.Now,
	}
}

// Accept reports whether ev should be rendered. A view is dropped unless its
// version is newer than every view seen for the session, and nothing is
// rendered after the session's outcome.
func (s *Sequencer) Accept(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	mark, ok := s.sessions[ev.SessionID]
	if !ok {
		mark = &sessionMark{}
		s.sessions[ev.SessionID] = mark
	}
	if mark.finished {
		return false
	}

	switch {
	case ev.Outcome != nil:
		mark.finished = true
	case ev.View != nil:
		if ok && ev.View.Version <= mark.version {
			return false
		}
		mark.version = ev.View.Version
	default:
		return false
	}
	mark.seen = now
	return true
}

func (s *Sequencer) prune(now time.Time) {
	if s.retain <= 0 || now.Sub(s.lastPrune) < s.retain {
		return
	}
	s.lastPrune = now
	for id, mark := range s.sessions {
		if now.Sub(mark.seen) >= s.retain {
			delete(s.sessions, id)
		}
	}
}
