package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

// MemoryAdapter keeps holdings and trade records in process. A single mutex
// makes every operation atomic; used for local runs and tests.
type MemoryAdapter struct {
	mu       sync.Mutex
	holdings map[string]map[string]int
	trades   map[string]domain.TradeRecord
	order    []string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		holdings: make(map[string]map[string]int),
		trades:   make(map[string]domain.TradeRecord),
	}
}

func (m *MemoryAdapter) GetHolding(ctx context.Context, ownerID, itemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdings[ownerID][itemID], nil
}

func (m *MemoryAdapter) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holdings := make([]domain.Holding, 0, len(m.holdings[ownerID]))
	for itemID, qty := range m.holdings[ownerID] {
		holdings = append(holdings, domain.Holding{OwnerID: ownerID, ItemID: itemID, Quantity: qty})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].ItemID < holdings[j].ItemID })
	return holdings, nil
}

func (m *MemoryAdapter) AdjustHolding(ctx context.Context, ownerID, itemID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.holdings[ownerID][itemID]
	if current+delta < 0 {
		return current, &domain.InsufficientHoldingError{OwnerID: ownerID, ItemID: itemID, Wanted: -delta}
	}
	m.add(ownerID, itemID, delta)
	return current + delta, nil
}

func (m *MemoryAdapter) CommitTrade(ctx context.Context, record domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trades[record.ID]; ok {
		return domain.ErrDuplicateTrade
	}

	legs := record.Legs()
	for _, leg := range legs {
		if m.holdings[leg.FromID][leg.ItemID] < leg.Quantity {
			return &domain.InsufficientHoldingError{OwnerID: leg.FromID, ItemID: leg.ItemID, Wanted: leg.Quantity}
		}
	}
	// decrements first so a side receiving the item it also gives cannot
	// cover its own offer with the incoming quantity
	for _, leg := range legs {
		m.add(leg.FromID, leg.ItemID, -leg.Quantity)
	}
	for _, leg := range legs {
		m.add(leg.ToID, leg.ItemID, leg.Quantity)
	}

	m.trades[record.ID] = record
	m.order = append(m.order, record.ID)
	return nil
}

func (m *MemoryAdapter) GetTrade(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.trades[tradeID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryAdapter) ListTrades(ctx context.Context, ownerID string, limit int) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []domain.TradeRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.trades[m.order[i]]
		if !rec.Involves(ownerID) {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records, nil
}

// SetHolding overwrites a holding; used for seeding.
func (m *MemoryAdapter) SetHolding(ctx context.Context, ownerID, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(ownerID, itemID, quantity-m.holdings[ownerID][itemID])
	return nil
}

func (m *MemoryAdapter) add(ownerID, itemID string, delta int) {
	items := m.holdings[ownerID]
	if items == nil {
		items = make(map[string]int)
		m.holdings[ownerID] = items
	}
	items[itemID] += delta
	if items[itemID] == 0 {
		delete(items, itemID)
	}
}
