package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bv-engine/api/controllers"
	"github.com/angelmondragon/bv-engine/api/middleware"
	"github.com/angelmondragon/bv-engine/internal/ledger"
	"github.com/angelmondragon/bv-engine/internal/members"
	"github.com/angelmondragon/bv-engine/internal/rules"
	"github.com/angelmondragon/bv-engine/pkg/config"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	pkgredis "github.com/angelmondragon/bv-engine/pkg/redis"
)

// Services are the domain entry points the HTTP surface dispatches to.
type Services struct {
	Members     members.Service
	Tree        controllers.TreeReader
	Distributor controllers.Distributor
	Rules       rules.Service
	Ledger      ledger.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *pkgredis.Client,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	// redis is optional; typed nils must not leak into the interfaces below
	var (
		redisPinger controllers.Pinger
		idemStore   pkgredis.IdempotencyStore
		limiter     *pkgredis.Client
	)
	if redisClient != nil {
		redisPinger = redisClient
		idemStore = redisClient
		limiter = redisClient
	}

	registerPolicy := middleware.NewIPRateLimitPolicy("register", cfg.RateLimit.Window, cfg.RateLimit.RegisterLimit)
	purchasePolicy := middleware.NewMemberRateLimitPolicy("purchase", cfg.RateLimit.Window, cfg.RateLimit.PurchaseLimit)
	rateLimit := func(policy middleware.RateLimitPolicy) func(http.Handler) http.Handler {
		if limiter == nil {
			return middleware.RateLimit(policy, nil, logg)
		}
		return middleware.RateLimit(policy, limiter, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		r.With(rateLimit(registerPolicy)).Post("/members/register", controllers.MemberRegister(svc.Members, logg))
		r.Get("/placements/{referralCode}", controllers.PlacementPreview(svc.Members, logg))

		r.Route("/members/{memberId}", func(r chi.Router) {
			r.Use(middleware.MemberScope(logg))
			r.Get("/", controllers.MemberGet(svc.Members, logg))
			r.Get("/tree", controllers.MemberTree(svc.Tree, cfg.Engine.TreeDefaultDepth, logg))
			r.With(rateLimit(purchasePolicy)).Post("/purchases", controllers.PurchaseCreate(svc.Distributor, logg))
			r.Get("/purchases", controllers.PurchaseList(svc.Ledger, logg))
			r.Get("/income", controllers.IncomeList(svc.Ledger, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminKey(cfg.Admin.APIKey, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Post("/members/root", controllers.AdminCreateRoot(svc.Members, logg))
		r.Get("/dashboard", controllers.AdminDashboard(svc.Ledger, logg))
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", controllers.AdminRulesList(svc.Rules, logg))
			r.Post("/", controllers.AdminRuleCreate(svc.Rules, logg))
			r.Put("/{ruleId}", controllers.AdminRuleUpdate(svc.Rules, logg))
			r.Post("/{ruleId}/activate", controllers.AdminRuleActivate(svc.Rules, logg))
		})
	})

	return r
}
