package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase records one buy action. CapturedBV is the item's BV at purchase
// time; BV is the final value written by the distribution run that paid it.
type Purchase struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null"`
	ItemID        string          `gorm:"column:item_id;not null"`
	CapturedBV    decimal.Decimal `gorm:"column:captured_bv;type:numeric(20,8);not null"`
	BV            decimal.Decimal `gorm:"column:bv;type:numeric(20,8);not null"`
	DistributedAt *time.Time      `gorm:"column:distributed_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Purchase) TableName() string {
	return "purchases"
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
