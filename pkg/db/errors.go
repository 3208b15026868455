package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure on Postgres
// (pgx or lib/pq) or SQLite. When constraintName is provided the failure must
// reference it; SQLite reports columns rather than index names, so the
// constraint is also matched against its column list.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pqErr.Constraint == constraintName
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		if constraintName == "" {
			return true
		}
		columns, ok := uniqueConstraintColumns[constraintName]
		if !ok {
			return strings.Contains(msg, constraintName)
		}
		return strings.Contains(msg, columns)
	}

	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// SQLite reports "UNIQUE constraint failed: table.col, table.col".
var uniqueConstraintColumns = map[string]string{
	ConstraintMemberSlot:              "members.parent_id, members.position",
	ConstraintMemberReferralCode:      "members.referral_code",
	ConstraintIncomePurchaseRecipient: "incomes.purchase_id, incomes.to_member_id",
	ConstraintIncomeLogPurchase:       "income_logs.purchase_id",
	ConstraintSingleActiveRule:        "distribution_rules.is_active",
	ConstraintPurchasePK:              "purchases.id",
}

// Constraint names shared by the goose migrations and the SQLite schema.
const (
	ConstraintMemberSlot              = "ux_members_parent_position"
	ConstraintMemberReferralCode      = "ux_members_referral_code"
	ConstraintIncomePurchaseRecipient = "ux_incomes_purchase_recipient"
	ConstraintIncomeLogPurchase       = "ux_income_logs_purchase"
	ConstraintSingleActiveRule        = "ux_distribution_rules_active"
	ConstraintPurchasePK              = "purchases_pkey"
)
