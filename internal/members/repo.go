package members

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/internal/repo"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
)

// childLookupChunk bounds the IN list of a single children query.
const childLookupChunk = 500

// Repository is the member directory: the persisted binary tree.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, member *models.Member) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Member, error)
	ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) ([]models.Member, error)
	Ancestors(ctx context.Context, memberID uuid.UUID, maxLevels int) ([]Ancestor, error)
	Count(ctx context.Context) (int64, error)
}

// Ancestor is one hop above a member; Level 1 is the direct parent.
type Ancestor struct {
	MemberID uuid.UUID `gorm:"column:id"`
	Level    int       `gorm:"column:depth"`
}

type repository struct {
	repo.Base
}

// NewRepository returns a member directory bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, member *models.Member) error {
	return r.DB(ctx).Create(member).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	return repo.FindOne[models.Member](ctx, r.Base, "id = ?", id)
}

func (r *repository) FindByReferralCode(ctx context.Context, code string) (*models.Member, error) {
	return repo.FindOne[models.Member](ctx, r.Base, "referral_code = ?", code)
}

// ChildrenOf loads every child of the given parents. Rows come back in no
// particular order; callers key them by (parent, position).
func (r *repository) ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) ([]models.Member, error) {
	var children []models.Member
	for start := 0; start < len(parentIDs); start += childLookupChunk {
		end := start + childLookupChunk
		if end > len(parentIDs) {
			end = len(parentIDs)
		}
		var batch []models.Member
		if err := r.DB(ctx).
			Where("parent_id IN ?", parentIDs[start:end]).
			Find(&batch).Error; err != nil {
			return nil, err
		}
		children = append(children, batch...)
	}
	return children, nil
}

const ancestorsQuery = `
WITH RECURSIVE chain (id, parent_id, depth) AS (
    SELECT m.id, m.parent_id, 0 FROM members m WHERE m.id = ?
    UNION ALL
    SELECT p.id, p.parent_id, c.depth + 1
    FROM members p
    JOIN chain c ON p.id = c.parent_id
    WHERE c.depth < ?
)
SELECT id, depth FROM chain WHERE depth > 0 ORDER BY depth ASC`

// Ancestors walks parent links upward from memberID, at most maxLevels hops.
func (r *repository) Ancestors(ctx context.Context, memberID uuid.UUID, maxLevels int) ([]Ancestor, error) {
	if maxLevels <= 0 {
		return nil, nil
	}
	var chain []Ancestor
	if err := r.DB(ctx).Raw(ancestorsQuery, memberID, maxLevels).Scan(&chain).Error; err != nil {
		return nil, err
	}
	return chain, nil
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.Member{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
