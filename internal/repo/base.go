package repo

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base is embedded by the engine repositories. Its handle is either the pool
// or the transaction a distribution run or rule activation is writing in.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle bound to ctx; a nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// FindOne loads the first T matching the condition. A miss surfaces as
// gorm.ErrRecordNotFound, which the services translate to NOT_FOUND.
func FindOne[T any](ctx context.Context, b Base, query any, args ...any) (*T, error) {
	var row T
	if err := b.DB(ctx).Where(query, args...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// SumDecimal totals a numeric column of model's table. An empty table sums to zero.
func (b Base) SumDecimal(ctx context.Context, model any, column string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := b.DB(ctx).
		Model(model).
		Select("SUM(?)", clause.Column{Name: column}).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
