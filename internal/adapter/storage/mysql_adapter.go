package storage

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetHolding(ctx context.Context, ownerID, itemID string) (int, error) {
	var qty int
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity FROM holdings WHERE owner_id = ? AND item_id = ?`,
		ownerID, itemID,
	).Scan(&qty)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query holding: %w", err)
	}
	return qty, nil
}

func (m *MySQLAdapter) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT owner_id, item_id, quantity, version, updated_at
		FROM holdings WHERE owner_id = ? AND quantity > 0
		ORDER BY item_id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.OwnerID, &h.ItemID, &h.Quantity, &h.Version, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (m *MySQLAdapter) AdjustHolding(ctx context.Context, ownerID, itemID string, delta int) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if delta < 0 {
		if err := decrementHolding(ctx, tx, ownerID, itemID, -delta); err != nil {
			return 0, err
		}
	} else if delta > 0 {
		if err := incrementHolding(ctx, tx, ownerID, itemID, delta); err != nil {
			return 0, err
		}
	}

	var qty int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM holdings WHERE owner_id = ? AND item_id = ?`,
		ownerID, itemID,
	).Scan(&qty)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query holding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return qty, nil
}

// CommitTrade inserts the record first so a retried commit hits the primary
// key before touching holdings, then applies the holding changes in key
// order so trades over overlapping owners lock rows in the same sequence.
func (m *MySQLAdapter) CommitTrade(ctx context.Context, record domain.TradeRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	give, take := record.InitiatorOffer, record.RecipientOffer
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trade_records (
			id, initiator_id, recipient_id,
			initiator_item_id, initiator_quantity,
			recipient_item_id, recipient_quantity,
			committed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.InitiatorID, record.RecipientID,
		give.ItemID(), give.Quantity(),
		take.ItemID(), take.Quantity(),
		record.CommittedAt,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			return domain.ErrDuplicateTrade
		}
		return fmt.Errorf("insert trade record: %w", err)
	}

	for _, change := range holdingChanges(record.Legs()) {
		if change.delta < 0 {
			err = decrementHolding(ctx, tx, change.ownerID, change.itemID, -change.delta)
		} else {
			err = incrementHolding(ctx, tx, change.ownerID, change.itemID, change.delta)
		}
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

type holdingChange struct {
	ownerID string
	itemID  string
	delta   int
}

// holdingChanges splits legs into per-row changes sorted by (owner_id,
// item_id). A row that is both given and received is decremented first.
func holdingChanges(legs []domain.Transfer) []holdingChange {
	changes := make([]holdingChange, 0, 2*len(legs))
	for _, leg := range legs {
		changes = append(changes,
			holdingChange{ownerID: leg.FromID, itemID: leg.ItemID, delta: -leg.Quantity},
			holdingChange{ownerID: leg.ToID, itemID: leg.ItemID, delta: leg.Quantity},
		)
	}
	slices.SortFunc(changes, func(a, b holdingChange) int {
		return cmp.Or(
			cmp.Compare(a.ownerID, b.ownerID),
			cmp.Compare(a.itemID, b.itemID),
			cmp.Compare(a.delta, b.delta),
		)
	})
	return changes
}

func (m *MySQLAdapter) GetTrade(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	row := m.db.QueryRowContext(ctx, selectTradeRecords+` WHERE id = ?`, tradeID)

	rec, err := scanTradeRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query trade record: %w", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) ListTrades(ctx context.Context, ownerID string, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx, selectTradeRecords+`
		WHERE initiator_id = ? OR recipient_id = ?
		ORDER BY committed_at DESC LIMIT ?`,
		ownerID, ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w", err)
	}
	defer rows.Close()

	var records []domain.TradeRecord
	for rows.Next() {
		rec, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// SetHolding overwrites a holding; used for seeding and tests.
func (m *MySQLAdapter) SetHolding(ctx context.Context, ownerID, itemID string, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO holdings (owner_id, item_id, quantity, version) VALUES (?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = version + 1, updated_at = NOW()`,
		ownerID, itemID, quantity,
	)
	if err != nil {
		return fmt.Errorf("set holding: %w", err)
	}
	return nil
}

func decrementHolding(ctx context.Context, tx *sql.Tx, ownerID, itemID string, qty int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE holdings
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW()
		WHERE owner_id = ? AND item_id = ? AND quantity >= ?`,
		qty, ownerID, itemID, qty,
	)
	if err != nil {
		return fmt.Errorf("update holding: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.InsufficientHoldingError{OwnerID: ownerID, ItemID: itemID, Wanted: qty}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM holdings WHERE owner_id = ? AND item_id = ? AND quantity = 0`,
		ownerID, itemID,
	); err != nil {
		return fmt.Errorf("delete empty holding: %w", err)
	}
	return nil
}

func incrementHolding(ctx context.Context, tx *sql.Tx, ownerID, itemID string, qty int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO holdings (owner_id, item_id, quantity, version) VALUES (?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity), version = version + 1, updated_at = NOW()`,
		ownerID, itemID, qty,
	)
	if err != nil {
		return fmt.Errorf("increment holding: %w", err)
	}
	return nil
}

const selectTradeRecords = `
	SELECT id, initiator_id, recipient_id,
		initiator_item_id, initiator_quantity,
		recipient_item_id, recipient_quantity,
		committed_at
	FROM trade_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTradeRecord(row rowScanner) (*domain.TradeRecord, error) {
	var (
		rec                domain.TradeRecord
		giveItem, takeItem string
		giveQty, takeQty   int
	)
	if err := row.Scan(
		&rec.ID, &rec.InitiatorID, &rec.RecipientID,
		&giveItem, &giveQty,
		&takeItem, &takeQty,
		&rec.CommittedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.InitiatorOffer, err = domain.NewOffer(domain.PartyInitiator, giveItem, giveQty); err != nil {
		return nil, fmt.Errorf("trade %s initiator offer: %w", rec.ID, err)
	}
	if rec.RecipientOffer, err = domain.NewOffer(domain.PartyRecipient, takeItem, takeQty); err != nil {
		return nil, fmt.Errorf("trade %s recipient offer: %w", rec.ID, err)
	}
	return &rec, nil
}
