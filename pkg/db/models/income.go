package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Income is an immutable credit to one ancestor for one purchase.
type Income struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ToMemberID   uuid.UUID       `gorm:"column:to_member_id;type:uuid;not null"`
	FromMemberID uuid.UUID       `gorm:"column:from_member_id;type:uuid;not null"`
	PurchaseID   uuid.UUID       `gorm:"column:purchase_id;type:uuid;not null"`
	RuleID       uuid.UUID       `gorm:"column:rule_id;type:uuid;not null"`
	Level        int             `gorm:"column:level;not null"`
	BV           decimal.Decimal `gorm:"column:bv;type:numeric(20,8);not null"`
	Rate         decimal.Decimal `gorm:"column:rate;type:numeric(12,10);not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,8);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Income) TableName() string {
	return "incomes"
}

func (i *Income) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IncomeLog aggregates a single distribution run for reporting.
type IncomeLog struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseID   uuid.UUID       `gorm:"column:purchase_id;type:uuid;not null"`
	BuyerID      uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null"`
	RuleID       uuid.UUID       `gorm:"column:rule_id;type:uuid;not null"`
	BV           decimal.Decimal `gorm:"column:bv;type:numeric(20,8);not null"`
	IncomeAmount decimal.Decimal `gorm:"column:income_amount;type:numeric(20,8);not null"`
	LevelsPaid   int             `gorm:"column:levels_paid;not null"`
	IncomeRows   int             `gorm:"column:income_rows;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (IncomeLog) TableName() string {
	return "income_logs"
}

func (l *IncomeLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
