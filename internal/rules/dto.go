package rules

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bv-engine/pkg/db/models"
)

// RuleDTO is the transport shape of a distribution rule.
type RuleDTO struct {
	ID             uuid.UUID       `json:"id"`
	BasePercentage decimal.Decimal `json:"base_percentage"`
	DecayEnabled   bool            `json:"decay_enabled"`
	IsActive       bool            `json:"is_active"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateRuleInput creates a new rule. BasePercentage accepts a fraction (0.1)
// or a percent (10); DecayEnabled defaults to true.
type CreateRuleInput struct {
	BasePercentage decimal.Decimal `json:"base_percentage" validate:"required"`
	DecayEnabled   *bool           `json:"decay_enabled,omitempty"`
	IsActive       bool            `json:"is_active"`
}

// UpdateRuleInput patches a rule; nil fields are left untouched.
type UpdateRuleInput struct {
	BasePercentage *decimal.Decimal `json:"base_percentage,omitempty"`
	DecayEnabled   *bool            `json:"decay_enabled,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
}

// Listing is the admin view: the active rule and the most recent versions.
type Listing struct {
	Active *RuleDTO  `json:"active_rule"`
	Recent []RuleDTO `json:"recent_rules"`
}

func FromModel(r *models.DistributionRule) *RuleDTO {
	if r == nil {
		return nil
	}
	return &RuleDTO{
		ID:             r.ID,
		BasePercentage: r.BasePercentage,
		DecayEnabled:   r.DecayEnabled,
		IsActive:       r.IsActive,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
