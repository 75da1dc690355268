package migrations

import (
	"gorm.io/gorm"
)

// AddDaemonIndexes creates the indexes backing the two hot daemon queries:
// the due-schedule scan and the live-order reconciliation scan.
func AddDaemonIndexes(db *gorm.DB) error {
	// Raw SQL for index creation to have more control over index shapes
	indexes := []string{
		// Composite index for the active+unpaused schedule scan
		`CREATE INDEX IF NOT EXISTS idx_schedules_dispatchable
		 ON schedules(is_active, is_paused)`,

		// Composite index for the live-order reconciliation scan
		`CREATE INDEX IF NOT EXISTS idx_orders_live_exchange
		 ON orders(is_live, exchange_order_id)`,

		// Index for per-credential order history, newest first
		`CREATE INDEX IF NOT EXISTS idx_orders_credential_created
		 ON orders(credential_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
