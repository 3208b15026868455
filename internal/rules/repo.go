package rules

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bv-engine/internal/repo"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
)

// Repository persists distribution rules.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rule *models.DistributionRule) error
	Save(ctx context.Context, rule *models.DistributionRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DistributionRule, error)
	FindActive(ctx context.Context) (*models.DistributionRule, error)
	LockActive(ctx context.Context) (*models.DistributionRule, error)
	DeactivateAll(ctx context.Context) error
	Activate(ctx context.Context, id uuid.UUID) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]models.DistributionRule, error)
	NextVersion(ctx context.Context) (int, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds a rule repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, rule *models.DistributionRule) error {
	return r.DB(ctx).Create(rule).Error
}

func (r *repository) Save(ctx context.Context, rule *models.DistributionRule) error {
	return r.DB(ctx).Save(rule).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DistributionRule, error) {
	return repo.FindOne[models.DistributionRule](ctx, r.Base, "id = ?", id)
}

func (r *repository) FindActive(ctx context.Context) (*models.DistributionRule, error) {
	return repo.FindOne[models.DistributionRule](ctx, r.Base, "is_active = ?", true)
}

// LockActive reads the active rule with FOR UPDATE so activations serialize.
// SQLite ignores the locking clause.
func (r *repository) LockActive(ctx context.Context) (*models.DistributionRule, error) {
	var rule models.DistributionRule
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("is_active = ?", true).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repository) DeactivateAll(ctx context.Context) error {
	return r.DB(ctx).
		Model(&models.DistributionRule{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}

func (r *repository) Activate(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.DistributionRule{}).
		Where("id = ?", id).
		Update("is_active", true)
	return res.RowsAffected, res.Error
}

// ListRecent returns rules newest version first.
func (r *repository) ListRecent(ctx context.Context, limit int) ([]models.DistributionRule, error) {
	var rules []models.DistributionRule
	q := r.DB(ctx).Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repository) NextVersion(ctx context.Context) (int, error) {
	var current int64
	row := r.DB(ctx).
		Model(&models.DistributionRule{}).
		Select("COALESCE(MAX(version), 0)").
		Row()
	if err := row.Scan(&current); err != nil {
		return 0, err
	}
	return int(current) + 1, nil
}
