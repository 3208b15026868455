package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/pkg/db"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

// RecentLimit caps the rules returned alongside the active one.
const RecentLimit = 10

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Service is the admin-side configuration surface the distribution engine reads from.
type Service interface {
	GetActive(ctx context.Context) (*models.DistributionRule, error)
	SetActive(ctx context.Context, ruleID uuid.UUID) (*models.DistributionRule, error)
	Create(ctx context.Context, input CreateRuleInput) (*models.DistributionRule, error)
	Update(ctx context.Context, ruleID uuid.UUID, input UpdateRuleInput) (*models.DistributionRule, error)
	List(ctx context.Context) (Listing, error)
}

type service struct {
	db   *db.Client
	repo Repository
	logg *logger.Logger
}

// NewService builds the rule service.
func NewService(client *db.Client, repo Repository, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rule repository required")
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{db: client, repo: repo, logg: logg}, nil
}

// NormalizePercentage turns a percent (10) into a fraction (0.10). Values in
// [0,1] are already fractions; negative values and values above 100 are rejected.
func NormalizePercentage(value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() || value.GreaterThan(hundred) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "base_percentage must be between 0 and 100")
	}
	if value.GreaterThan(one) {
		return value.Div(hundred), nil
	}
	return value, nil
}

// GetActive returns the active rule, or nil when none is configured.
func (s *service) GetActive(ctx context.Context) (*models.DistributionRule, error) {
	rule, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active rule")
	}
	return rule, nil
}

// SetActive makes ruleID the only active rule.
func (s *service) SetActive(ctx context.Context, ruleID uuid.UUID) (*models.DistributionRule, error) {
	var activated *models.DistributionRule
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := activate(ctx, repo, ruleID); err != nil {
			return err
		}
		rule, err := repo.FindByID(ctx, ruleID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload rule")
		}
		activated = rule
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithRuleID(ctx, ruleID.String()), "distribution rule activated")
	return activated, nil
}

func (s *service) Create(ctx context.Context, input CreateRuleInput) (*models.DistributionRule, error) {
	base, err := NormalizePercentage(input.BasePercentage)
	if err != nil {
		return nil, err
	}
	decay := true
	if input.DecayEnabled != nil {
		decay = *input.DecayEnabled
	}

	rule := &models.DistributionRule{BasePercentage: base, DecayEnabled: decay}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		version, err := repo.NextVersion(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "next rule version")
		}
		rule.Version = version
		if err := repo.Create(ctx, rule); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create rule")
		}
		if input.IsActive {
			if err := activate(ctx, repo, rule.ID); err != nil {
				return err
			}
			rule.IsActive = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Update patches a rule in place and bumps its version. Incomes already
// written keep the rate they were computed with.
func (s *service) Update(ctx context.Context, ruleID uuid.UUID, input UpdateRuleInput) (*models.DistributionRule, error) {
	var updated *models.DistributionRule
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rule, err := repo.FindByID(ctx, ruleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "distribution rule not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load rule")
		}

		if input.BasePercentage != nil {
			base, err := NormalizePercentage(*input.BasePercentage)
			if err != nil {
				return err
			}
			rule.BasePercentage = base
		}
		if input.DecayEnabled != nil {
			rule.DecayEnabled = *input.DecayEnabled
		}
		version, err := repo.NextVersion(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "next rule version")
		}
		rule.Version = version

		activating := input.IsActive != nil && *input.IsActive && !rule.IsActive
		if input.IsActive != nil && !*input.IsActive {
			rule.IsActive = false
		}
		if err := repo.Save(ctx, rule); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update rule")
		}
		if activating {
			if err := activate(ctx, repo, rule.ID); err != nil {
				return err
			}
			rule.IsActive = true
		}
		updated = rule
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) List(ctx context.Context) (Listing, error) {
	active, err := s.GetActive(ctx)
	if err != nil {
		return Listing{}, err
	}
	recent, err := s.repo.ListRecent(ctx, RecentLimit)
	if err != nil {
		return Listing{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list rules")
	}
	listing := Listing{Active: FromModel(active), Recent: make([]RuleDTO, 0, len(recent))}
	for i := range recent {
		listing.Recent = append(listing.Recent, *FromModel(&recent[i]))
	}
	return listing, nil
}

// activate deactivates every rule then flags ruleID, inside the caller's tx.
func activate(ctx context.Context, repo Repository, ruleID uuid.UUID) error {
	if _, err := repo.LockActive(ctx); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock active rule")
	}
	if err := repo.DeactivateAll(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate rules")
	}
	affected, err := repo.Activate(ctx, ruleID)
	if err != nil {
		if db.IsUniqueViolation(err, db.ConstraintSingleActiveRule) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another rule was activated concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate rule")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "distribution rule not found")
	}
	return nil
}
