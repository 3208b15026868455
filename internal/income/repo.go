package income

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/internal/repo"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/pagination"
)

// ListLimit caps the income rows returned per page.
const ListLimit = 100

// Repository is the append-only income ledger. Rows are never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIncomes(ctx context.Context, rows []models.Income) error
	CreateLog(ctx context.Context, log *models.IncomeLog) error
	LogExists(ctx context.Context, purchaseID uuid.UUID) (bool, error)
	ListByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.Income, error)
	ListByBeneficiary(ctx context.Context, memberID uuid.UUID, params pagination.Params) (Page, error)
	TotalDistributed(ctx context.Context) (decimal.Decimal, error)
}

// Page is one page of a beneficiary's income, newest first.
type Page struct {
	Items      []models.Income
	Pagination pagination.Meta
}

type repository struct {
	repo.Base
}

// NewRepository binds an income repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) CreateIncomes(ctx context.Context, rows []models.Income) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

func (r *repository) CreateLog(ctx context.Context, log *models.IncomeLog) error {
	return r.DB(ctx).Create(log).Error
}

func (r *repository) LogExists(ctx context.Context, purchaseID uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB(ctx).
		Model(&models.IncomeLog{}).
		Where("purchase_id = ?", purchaseID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByPurchase returns a purchase's rows ordered by level.
func (r *repository) ListByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.Income, error) {
	var rows []models.Income
	if err := r.DB(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("level ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByBeneficiary(ctx context.Context, memberID uuid.UUID, params pagination.Params) (Page, error) {
	limit := pagination.NormalizeLimitWithin(params.Limit, ListLimit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return Page{}, err
	}

	query := r.DB(ctx).Where("to_member_id = ?", memberID)
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Income
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&rows).Error; err != nil {
		return Page{}, err
	}

	page := Page{Pagination: pagination.Meta{Limit: limit, Current: params.Cursor}}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.Pagination.Next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	page.Items = rows
	return page, nil
}

// TotalDistributed sums income_amount across every distribution run.
func (r *repository) TotalDistributed(ctx context.Context) (decimal.Decimal, error) {
	return r.SumDecimal(ctx, &models.IncomeLog{}, "income_amount")
}
