package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bv-engine/api/responses"
	"github.com/angelmondragon/bv-engine/api/validators"
	"github.com/angelmondragon/bv-engine/internal/members"
	"github.com/angelmondragon/bv-engine/internal/tree"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

const displayNameMaxLen = 120

// TreeReader renders a member's downline.
type TreeReader interface {
	GetReferralTree(ctx context.Context, rootID uuid.UUID, requestedDepth int) (*tree.Node, error)
}

// MemberRegister places a new member under the sponsor identified by referral code.
func MemberRegister(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input members.RegisterInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.DisplayName = validators.SanitizeString(input.DisplayName, displayNameMaxLen)

		member, err := svc.Register(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, members.FromModel(member))
	}
}

type rootMemberRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
}

// AdminCreateRoot seeds a member with no sponsor and no parent.
func AdminCreateRoot(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rootMemberRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.CreateRoot(r.Context(), validators.SanitizeString(req.DisplayName, displayNameMaxLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, members.FromModel(member))
	}
}

func MemberGet(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParamUUID(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.Get(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, members.FromModel(member))
	}
}

// PlacementPreview reports the slot a registration under the code would take
// right now. The answer is not reserved.
func PlacementPreview(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(chi.URLParam(r, "referralCode"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "referral code required"))
			return
		}

		slot, err := svc.ResolvePlacement(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, slot)
	}
}

// MemberTree renders the downline; out-of-range depths are clamped, not rejected.
func MemberTree(reader TreeReader, defaultDepth int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParamUUID(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		depth := validators.ClampQueryInt(r, "depth", defaultDepth, tree.MinDepth, tree.MaxDepth)

		root, err := reader.GetReferralTree(r.Context(), memberID, depth)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"depth": depth,
			"root":  root,
		})
	}
}
