package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DistributionRule configures the payout schedule. BasePercentage is the level-1
// rate stored as a fraction in [0,1]. At most one row has IsActive set.
type DistributionRule struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BasePercentage decimal.Decimal `gorm:"column:base_percentage;type:numeric(12,10);not null"`
	DecayEnabled   bool            `gorm:"column:decay_enabled;not null"`
	IsActive       bool            `gorm:"column:is_active;not null"`
	Version        int             `gorm:"column:version;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (DistributionRule) TableName() string {
	return "distribution_rules"
}

func (r *DistributionRule) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
