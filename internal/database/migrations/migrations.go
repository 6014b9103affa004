package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationsList holds all migrations
var migrationsList []*gormigrate.Migration

// RunMigrations runs all database migrations
func RunMigrations(db *gorm.DB, log *zap.Logger) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrationsList)

	if err := m.Migrate(); err != nil {
		log.Error("could not migrate", zap.Error(err))
		return err
	}
	log.Info("migrations ran successfully", zap.Int("count", len(migrationsList)))
	return nil
}

// execAll runs each statement in order, stopping at the first error
func execAll(tx *gorm.DB, statements ...string) error {
	for _, stmt := range statements {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// transactionTable returns the DDL shared by payments, payouts and refunds
func transactionTable(table, kind string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id UUID PRIMARY KEY,
			kind VARCHAR(10) NOT NULL DEFAULT '` + kind + `' CHECK (kind = '` + kind + `'),
			provider VARCHAR(20) NOT NULL CHECK (provider IN ('mtn', 'orange', 'pawapay')),
			booking_id VARCHAR(100) NOT NULL,
			amount NUMERIC(20,2) NOT NULL CHECK (amount > 0),
			currency VARCHAR(3) NOT NULL DEFAULT 'XAF',
			phone_number VARCHAR(20) NOT NULL,
			reason VARCHAR(255),
			customer_name VARCHAR(255),
			provider_reference_id VARCHAR(100) NOT NULL,
			provider_transaction_id VARCHAR(100),
			status VARCHAR(20) NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'refunded')),
			provider_raw_response JSONB,
			error_message TEXT,
			original_transaction_id UUID,
			refund_via_payout BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_` + table + `_provider_reference ON ` + table + `(provider, provider_reference_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_provider_transaction ON ` + table + `(provider, provider_transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_booking_kind_status ON ` + table + `(booking_id, kind, status)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_status_created ON ` + table + `(status, created_at)`,
	}
}
