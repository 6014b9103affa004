package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createRefundsTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_refunds_table",
		Migrate: func(tx *gorm.DB) error {
			stmts := transactionTable("refunds", "refund")
			stmts = append(stmts,
				`ALTER TABLE refunds ADD CONSTRAINT fk_refunds_payment
					FOREIGN KEY (original_transaction_id) REFERENCES payments(id)`,
				`CREATE INDEX IF NOT EXISTS idx_refunds_original ON refunds(original_transaction_id)`,
			)
			return execAll(tx, stmts...)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS refunds").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createRefundsTableMigration())
}
