package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors pkg/migrate/migrations for the embedded SQLite store used
// in local runs and tests. Postgres deployments go through goose instead.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS members (
  id TEXT PRIMARY KEY,
  referral_code TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  parent_id TEXT REFERENCES members (id),
  position TEXT CHECK (position IN ('left', 'right')),
  sponsor_id TEXT REFERENCES members (id),
  created_at DATETIME,
  updated_at DATETIME,
  CHECK ((parent_id IS NULL) = (position IS NULL)),
  CHECK (parent_id IS NULL OR parent_id <> id)
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_members_referral_code ON members (referral_code)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_members_parent_position ON members (parent_id, position) WHERE parent_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS ix_members_parent ON members (parent_id)`,
	`CREATE TABLE IF NOT EXISTS distribution_rules (
  id TEXT PRIMARY KEY,
  base_percentage NUMERIC NOT NULL CHECK (base_percentage >= 0 AND base_percentage <= 1),
  decay_enabled INTEGER NOT NULL DEFAULT 1,
  is_active INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_distribution_rules_active ON distribution_rules (is_active) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_distribution_rules_version ON distribution_rules (version)`,
	`CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL REFERENCES members (id),
  item_id TEXT NOT NULL,
  captured_bv NUMERIC NOT NULL,
  bv NUMERIC NOT NULL DEFAULT 0,
  distributed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS ix_purchases_buyer_created ON purchases (buyer_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS incomes (
  id TEXT PRIMARY KEY,
  to_member_id TEXT NOT NULL REFERENCES members (id),
  from_member_id TEXT NOT NULL REFERENCES members (id),
  purchase_id TEXT NOT NULL REFERENCES purchases (id),
  rule_id TEXT NOT NULL REFERENCES distribution_rules (id),
  level INTEGER NOT NULL CHECK (level >= 1),
  bv NUMERIC NOT NULL,
  rate NUMERIC NOT NULL,
  amount NUMERIC NOT NULL,
  created_at DATETIME
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_incomes_purchase_recipient ON incomes (purchase_id, to_member_id)`,
	`CREATE INDEX IF NOT EXISTS ix_incomes_recipient_created ON incomes (to_member_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS income_logs (
  id TEXT PRIMARY KEY,
  purchase_id TEXT NOT NULL REFERENCES purchases (id),
  buyer_id TEXT NOT NULL REFERENCES members (id),
  rule_id TEXT NOT NULL REFERENCES distribution_rules (id),
  bv NUMERIC NOT NULL,
  income_amount NUMERIC NOT NULL,
  levels_paid INTEGER NOT NULL,
  income_rows INTEGER NOT NULL,
  created_at DATETIME
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_income_logs_purchase ON income_logs (purchase_id)`,
}

// ApplySQLiteSchema creates the engine tables on a SQLite connection. It is idempotent.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
