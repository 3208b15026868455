package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bv-engine/api/responses"
	"github.com/angelmondragon/bv-engine/api/validators"
	"github.com/angelmondragon/bv-engine/internal/distribution"
	"github.com/angelmondragon/bv-engine/internal/income"
	"github.com/angelmondragon/bv-engine/internal/ledger"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	"github.com/angelmondragon/bv-engine/pkg/pagination"
)

// Distributor runs the income distribution for a confirmed purchase.
type Distributor interface {
	Distribute(ctx context.Context, input distribution.Input) (distribution.Result, error)
}

type purchaseRequest struct {
	ItemID     string          `json:"item_id" validate:"required,max=128"`
	BV         decimal.Decimal `json:"bv"`
	PurchaseID *uuid.UUID      `json:"purchase_id,omitempty"`
}

// PurchaseCreate records a purchase by the member and distributes its BV up
// the chain in one transaction.
func PurchaseCreate(engine Distributor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParamUUID(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req purchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.Distribute(r.Context(), distribution.Input{
			BuyerID:    memberID,
			ItemID:     strings.TrimSpace(req.ItemID),
			CapturedBV: req.BV,
			PurchaseID: req.PurchaseID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func PurchaseList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParamUUID(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.MemberPurchases(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// IncomeList pages the member's income newest first.
func IncomeList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParamUUID(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", income.ListLimit, 1, income.ListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.MemberIncome(r.Context(), memberID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
