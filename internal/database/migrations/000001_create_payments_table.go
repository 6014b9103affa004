package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createPaymentsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_payments_table",
		Migrate: func(tx *gorm.DB) error {
			stmts := transactionTable("payments", "payin")
			// At most one payin in flight per booking
			stmts = append(stmts, `CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_active_booking
				ON payments(booking_id) WHERE status IN ('pending', 'processing')`)
			return execAll(tx, stmts...)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS payments").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createPaymentsTableMigration())
}
