package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/internal/income"
	"github.com/angelmondragon/bv-engine/internal/members"
	"github.com/angelmondragon/bv-engine/internal/purchases"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/pagination"
)

// Service is the read side of the purchase and income ledger.
type Service interface {
	MemberIncome(ctx context.Context, memberID uuid.UUID, params pagination.Params) (IncomePage, error)
	MemberPurchases(ctx context.Context, memberID uuid.UUID) ([]PurchaseDTO, error)
	Dashboard(ctx context.Context) (Dashboard, error)
}

type service struct {
	members   members.Repository
	purchases purchases.Repository
	income    income.Repository
}

// NewService wires the ledger reader with its repositories.
func NewService(memberRepo members.Repository, purchaseRepo purchases.Repository, incomeRepo income.Repository) (Service, error) {
	if memberRepo == nil || purchaseRepo == nil || incomeRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repositories required")
	}
	return &service{members: memberRepo, purchases: purchaseRepo, income: incomeRepo}, nil
}

func (s *service) MemberIncome(ctx context.Context, memberID uuid.UUID, params pagination.Params) (IncomePage, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return IncomePage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err := s.requireMember(ctx, memberID); err != nil {
		return IncomePage{}, err
	}
	page, err := s.income.ListByBeneficiary(ctx, memberID, params)
	if err != nil {
		return IncomePage{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list income")
	}
	out := IncomePage{Items: make([]IncomeDTO, 0, len(page.Items)), Pagination: page.Pagination}
	for _, row := range page.Items {
		out.Items = append(out.Items, incomeFromModel(row))
	}
	return out, nil
}

func (s *service) MemberPurchases(ctx context.Context, memberID uuid.UUID) ([]PurchaseDTO, error) {
	if err := s.requireMember(ctx, memberID); err != nil {
		return nil, err
	}
	rows, err := s.purchases.ListByBuyer(ctx, memberID, purchases.ListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list purchases")
	}
	out := make([]PurchaseDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, purchaseFromModel(row))
	}
	return out, nil
}

func (s *service) Dashboard(ctx context.Context) (Dashboard, error) {
	count, err := s.members.Count(ctx)
	if err != nil {
		return Dashboard{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count members")
	}
	bv, err := s.purchases.TotalBV(ctx)
	if err != nil {
		return Dashboard{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum purchase bv")
	}
	distributed, err := s.income.TotalDistributed(ctx)
	if err != nil {
		return Dashboard{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum distributed income")
	}
	return Dashboard{
		TotalMembers:           count,
		TotalBVGenerated:       bv,
		TotalIncomeDistributed: distributed,
	}, nil
}

func (s *service) requireMember(ctx context.Context, memberID uuid.UUID) error {
	if _, err := s.members.FindByID(ctx, memberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load member")
	}
	return nil
}
