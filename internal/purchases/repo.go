package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/internal/repo"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
)

// ListLimit caps the purchases returned for a buyer.
const ListLimit = 50

// Repository persists purchases.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	MarkDistributed(ctx context.Context, id uuid.UUID, bv decimal.Decimal, at time.Time) (int64, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Purchase, error)
	TotalBV(ctx context.Context) (decimal.Decimal, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds a purchase repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.DB(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return repo.FindOne[models.Purchase](ctx, r.Base, "id = ?", id)
}

// MarkDistributed writes the final BV and stamps distributed_at. It only
// touches rows not yet distributed and reports how many it changed.
func (r *repository) MarkDistributed(ctx context.Context, id uuid.UUID, bv decimal.Decimal, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND distributed_at IS NULL", id).
		Updates(map[string]any{
			"bv":             bv,
			"distributed_at": at,
		})
	return res.RowsAffected, res.Error
}

// ListByBuyer returns the buyer's purchases, newest first.
func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Purchase, error) {
	if limit <= 0 || limit > ListLimit {
		limit = ListLimit
	}
	var purchases []models.Purchase
	if err := r.DB(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// TotalBV sums the final BV of every purchase.
func (r *repository) TotalBV(ctx context.Context) (decimal.Decimal, error) {
	return r.SumDecimal(ctx, &models.Purchase{}, "bv")
}
