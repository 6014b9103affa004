package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createPayoutsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_payouts_table",
		Migrate: func(tx *gorm.DB) error {
			stmts := transactionTable("payouts", "payout")
			// A failed payout may be retried; anything else blocks a second one
			stmts = append(stmts, `CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_booking
				ON payouts(booking_id) WHERE status <> 'failed'`)
			return execAll(tx, stmts...)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS payouts").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createPayoutsTableMigration())
}
