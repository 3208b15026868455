package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/pagination"
)

// IncomeDTO is one credit as shown to its beneficiary.
type IncomeDTO struct {
	ID           uuid.UUID       `json:"id"`
	FromMemberID uuid.UUID       `json:"from_member_id"`
	PurchaseID   uuid.UUID       `json:"purchase_id"`
	Level        int             `json:"level"`
	BV           decimal.Decimal `json:"bv"`
	Rate         decimal.Decimal `json:"rate"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IncomePage is a page of a member's income, newest first.
type IncomePage struct {
	Items      []IncomeDTO     `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

// PurchaseDTO is a purchase as shown to its buyer.
type PurchaseDTO struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        string          `json:"item_id"`
	CapturedBV    decimal.Decimal `json:"captured_bv"`
	BV            decimal.Decimal `json:"bv"`
	DistributedAt *time.Time      `json:"distributed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Dashboard holds the admin totals.
type Dashboard struct {
	TotalMembers           int64           `json:"total_members"`
	TotalBVGenerated       decimal.Decimal `json:"total_bv_generated"`
	TotalIncomeDistributed decimal.Decimal `json:"total_income_distributed"`
}

func incomeFromModel(row models.Income) IncomeDTO {
	return IncomeDTO{
		ID:           row.ID,
		FromMemberID: row.FromMemberID,
		PurchaseID:   row.PurchaseID,
		Level:        row.Level,
		BV:           row.BV,
		Rate:         row.Rate,
		Amount:       row.Amount,
		CreatedAt:    row.CreatedAt,
	}
}

func purchaseFromModel(p models.Purchase) PurchaseDTO {
	return PurchaseDTO{
		ID:            p.ID,
		ItemID:        p.ItemID,
		CapturedBV:    p.CapturedBV,
		BV:            p.BV,
		DistributedAt: p.DistributedAt,
		CreatedAt:     p.CreatedAt,
	}
}
