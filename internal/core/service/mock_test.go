package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

var (
	errStoreDown = errors.New("connection refused")
	errTimeout   = errors.New("i/o timeout")
)

// mockStore implements both repositories over maps with one mutex, so
// CommitTrade is atomic the same way the real adapters are.
type mockStore struct {
	mu          sync.Mutex
	holdings    map[string]map[string]int
	trades      map[string]domain.TradeRecord
	failCommits int
	failReads   bool
	commitCalls int

	// loseCommitReplies applies the next commits but reports a timeout,
	// as when the connection drops after the store has written.
	loseCommitReplies int
}

func newMockStore() *mockStore {
	return &mockStore{
		holdings: make(map[string]map[string]int),
		trades:   make(map[string]domain.TradeRecord),
	}
}

func (m *mockStore) set(owner, item string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holdings[owner] == nil {
		m.holdings[owner] = make(map[string]int)
	}
	m.holdings[owner][item] = qty
}

func (m *mockStore) setFailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

func (m *mockStore) qty(owner, item string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdings[owner][item]
}

func (m *mockStore) total(item string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, items := range m.holdings {
		sum += items[item]
	}
	return sum
}

func (m *mockStore) GetHolding(ctx context.Context, ownerID, itemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return 0, errStoreDown
	}
	return m.holdings[ownerID][itemID], nil
}

func (m *mockStore) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Holding
	for item, qty := range m.holdings[ownerID] {
		if qty > 0 {
			out = append(out, domain.Holding{OwnerID: ownerID, ItemID: item, Quantity: qty})
		}
	}
	return out, nil
}

func (m *mockStore) AdjustHolding(ctx context.Context, ownerID, itemID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holdings[ownerID] == nil {
		m.holdings[ownerID] = make(map[string]int)
	}
	next := m.holdings[ownerID][itemID] + delta
	if next < 0 {
		return 0, &domain.InsufficientHoldingError{OwnerID: ownerID, ItemID: itemID, Wanted: -delta}
	}
	m.holdings[ownerID][itemID] = next
	return next, nil
}

func (m *mockStore) CommitTrade(ctx context.Context, record domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	if m.failCommits > 0 {
		m.failCommits--
		return errStoreDown
	}
	if _, ok := m.trades[record.ID]; ok {
		return domain.ErrDuplicateTrade
	}
	legs := record.Legs()
	for _, leg := range legs {
		if m.holdings[leg.FromID][leg.ItemID] < leg.Quantity {
			return &domain.InsufficientHoldingError{OwnerID: leg.FromID, ItemID: leg.ItemID, Wanted: leg.Quantity}
		}
	}
	for _, leg := range legs {
		m.holdings[leg.FromID][leg.ItemID] -= leg.Quantity
	}
	for _, leg := range legs {
		if m.holdings[leg.ToID] == nil {
			m.holdings[leg.ToID] = make(map[string]int)
		}
		m.holdings[leg.ToID][leg.ItemID] += leg.Quantity
	}
	m.trades[record.ID] = record
	if m.loseCommitReplies > 0 {
		m.loseCommitReplies--
		return errTimeout
	}
	return nil
}

func (m *mockStore) GetTrade(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errStoreDown
	}
	rec, ok := m.trades[tradeID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockStore) ListTrades(ctx context.Context, ownerID string, limit int) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TradeRecord
	for _, rec := range m.trades {
		if rec.Involves(ownerID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// recordingPresenter captures everything the service renders.
type recordingPresenter struct {
	mu       sync.Mutex
	views    []domain.StageView
	outcomes []domain.Outcome
}

func (p *recordingPresenter) Present(ctx context.Context, view domain.StageView) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, view)
	return nil
}

func (p *recordingPresenter) NotifyOutcome(ctx context.Context, outcome domain.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
	return nil
}

func (p *recordingPresenter) outcomeList() []domain.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Outcome(nil), p.outcomes...)
}
