package controllers

import (
	"net/http"

	"github.com/angelmondragon/bv-engine/api/responses"
	"github.com/angelmondragon/bv-engine/api/validators"
	"github.com/angelmondragon/bv-engine/internal/ledger"
	"github.com/angelmondragon/bv-engine/internal/rules"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

// AdminRulesList returns the active rule and the latest versions.
func AdminRulesList(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

func AdminRuleCreate(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input rules.CreateRuleInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rules.FromModel(rule))
	}
}

// AdminRuleUpdate patches a rule; omitted fields keep their values.
func AdminRuleUpdate(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := validators.ParamUUID(r, "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input rules.UpdateRuleInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.Update(r.Context(), ruleID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rules.FromModel(rule))
	}
}

func AdminRuleActivate(svc rules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := validators.ParamUUID(r, "ruleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rule, err := svc.SetActive(r.Context(), ruleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rules.FromModel(rule))
	}
}

// AdminDashboard reports the network totals.
func AdminDashboard(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := svc.Dashboard(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dash)
	}
}
