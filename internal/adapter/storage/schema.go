package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; the driver does not enable
// multi-statement execution by default.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS holdings (
		owner_id   VARCHAR(64)  NOT NULL,
		item_id    VARCHAR(128) NOT NULL,
		quantity   INT UNSIGNED NOT NULL DEFAULT 0,
		version    INT          NOT NULL DEFAULT 0,
		created_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trade_records (
		id                 CHAR(36)     NOT NULL PRIMARY KEY,
		initiator_id       VARCHAR(64)  NOT NULL,
		recipient_id       VARCHAR(64)  NOT NULL,
		initiator_item_id  VARCHAR(128) NOT NULL DEFAULT '',
		initiator_quantity INT UNSIGNED NOT NULL DEFAULT 0,
		recipient_item_id  VARCHAR(128) NOT NULL DEFAULT '',
		recipient_quantity INT UNSIGNED NOT NULL DEFAULT 0,
		committed_at       DATETIME(6)  NOT NULL,
		INDEX idx_trade_records_initiator (initiator_id, committed_at),
		INDEX idx_trade_records_recipient (recipient_id, committed_at)
	)`,
}

// Migrate creates the tables used by MySQLAdapter if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
