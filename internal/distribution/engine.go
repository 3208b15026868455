package distribution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/internal/income"
	"github.com/angelmondragon/bv-engine/internal/members"
	"github.com/angelmondragon/bv-engine/internal/purchases"
	"github.com/angelmondragon/bv-engine/internal/rules"
	"github.com/angelmondragon/bv-engine/pkg/db"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	"github.com/angelmondragon/bv-engine/pkg/metrics"
)

// DefaultMaxLevels bounds the ancestor walk.
const DefaultMaxLevels = 32

// Input describes a confirmed purchase. PurchaseID is optional; when set and
// the purchase already exists it is distributed in place, otherwise a purchase
// is created with that id.
type Input struct {
	BuyerID    uuid.UUID
	ItemID     string
	CapturedBV decimal.Decimal
	PurchaseID *uuid.UUID
}

// Result summarizes a committed distribution run.
type Result struct {
	PurchaseID        uuid.UUID       `json:"purchase_id"`
	FinalBV           decimal.Decimal `json:"final_bv"`
	IncomeRowsCreated int             `json:"income_rows_created"`
	LevelsPaid        int             `json:"levels_paid"`
	TotalIncome       decimal.Decimal `json:"total_income"`
	RuleID            uuid.UUID       `json:"rule_id"`
}

// EngineParams packages the engine dependencies.
type EngineParams struct {
	DB          *db.Client
	Members     members.Repository
	Rules       rules.Repository
	Purchases   purchases.Repository
	Income      income.Repository
	Logger      *logger.Logger
	Metrics     *metrics.EngineMetrics
	MaxLevels   int
	AmountScale int32
	Now         func() time.Time
}

// Engine converts a purchase's BV into income rows for the buyer's ancestors.
type Engine struct {
	db        *db.Client
	members   members.Repository
	rules     rules.Repository
	purchases purchases.Repository
	income    income.Repository
	logg      *logger.Logger
	metrics   *metrics.EngineMetrics
	maxLevels int
	scale     int32
	now       func() time.Time
}

// NewEngine validates the dependencies and applies defaults.
func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	case params.Members == nil, params.Rules == nil, params.Purchases == nil, params.Income == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "distribution repositories required")
	}
	if params.MaxLevels <= 0 {
		params.MaxLevels = DefaultMaxLevels
	}
	if params.AmountScale <= 0 {
		params.AmountScale = DefaultAmountScale
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Logger == nil {
		params.Logger = logger.Discard()
	}
	return &Engine{
		db:        params.DB,
		members:   params.Members,
		rules:     params.Rules,
		purchases: params.Purchases,
		income:    params.Income,
		logg:      params.Logger,
		metrics:   params.Metrics,
		maxLevels: params.MaxLevels,
		scale:     params.AmountScale,
		now:       params.Now,
	}, nil
}

// DistributePurchase records a new purchase and distributes it.
func (e *Engine) DistributePurchase(ctx context.Context, buyerID uuid.UUID, itemID string, capturedBV decimal.Decimal) (Result, error) {
	return e.Distribute(ctx, Input{BuyerID: buyerID, ItemID: itemID, CapturedBV: capturedBV})
}

// Distribute writes the purchase, one income row per paid level and the
// income log in a single transaction. Nothing is committed on failure.
func (e *Engine) Distribute(ctx context.Context, input Input) (Result, error) {
	result, err := e.distribute(ctx, input)
	if err != nil {
		outcome := string(pkgerrors.CodeInternal)
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		}
		e.metrics.IncDistribution(outcome)
		return Result{}, err
	}

	e.metrics.IncDistribution(metrics.OutcomeSuccess)
	e.metrics.AddIncome(result.TotalIncome.InexactFloat64(), result.IncomeRowsCreated)
	logCtx := e.logg.WithPurchaseID(ctx, result.PurchaseID.String())
	logCtx = e.logg.WithRuleID(logCtx, result.RuleID.String())
	logCtx = e.logg.WithFields(logCtx, map[string]any{
		"levels_paid":  result.LevelsPaid,
		"total_income": result.TotalIncome.String(),
	})
	e.logg.Info(logCtx, "purchase distributed")
	return result, nil
}

func (e *Engine) distribute(ctx context.Context, input Input) (Result, error) {
	itemID := strings.TrimSpace(input.ItemID)
	if itemID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "item_id is required")
	}
	if input.CapturedBV.IsNegative() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "bv must not be negative")
	}

	var result Result
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		memberRepo := e.members.WithTx(tx)
		ruleRepo := e.rules.WithTx(tx)
		purchaseRepo := e.purchases.WithTx(tx)
		incomeRepo := e.income.WithTx(tx)

		if _, err := memberRepo.FindByID(ctx, input.BuyerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load buyer")
		}

		rule, err := ruleRepo.FindActive(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNoActiveRule, "no distribution rule is active")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active rule")
		}

		purchase, err := e.openPurchase(ctx, purchaseRepo, incomeRepo, input, itemID)
		if err != nil {
			return err
		}

		chain, err := memberRepo.Ancestors(ctx, input.BuyerID, e.maxLevels)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ancestor chain")
		}
		if err := checkChain(input.BuyerID, chain); err != nil {
			return err
		}

		bv := purchase.CapturedBV
		schedule := Schedule{Base: rule.BasePercentage, Decay: rule.DecayEnabled, Scale: e.scale}
		payouts := schedule.Plan(bv, len(chain))

		rows := make([]models.Income, 0, len(payouts))
		total := decimal.Zero
		for _, payout := range payouts {
			rows = append(rows, models.Income{
				ToMemberID:   chain[payout.Level-1].MemberID,
				FromMemberID: input.BuyerID,
				PurchaseID:   purchase.ID,
				RuleID:       rule.ID,
				Level:        payout.Level,
				BV:           bv,
				Rate:         payout.Rate,
				Amount:       payout.Amount,
			})
			total = total.Add(payout.Amount)
		}

		if err := incomeRepo.CreateIncomes(ctx, rows); err != nil {
			return translateWriteErr(err, "create income rows")
		}
		if err := incomeRepo.CreateLog(ctx, &models.IncomeLog{
			PurchaseID:   purchase.ID,
			BuyerID:      input.BuyerID,
			RuleID:       rule.ID,
			BV:           bv,
			IncomeAmount: total,
			LevelsPaid:   len(payouts),
			IncomeRows:   len(rows),
		}); err != nil {
			return translateWriteErr(err, "create income log")
		}

		affected, err := purchaseRepo.MarkDistributed(ctx, purchase.ID, bv, e.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalize purchase")
		}
		if affected == 0 {
			return alreadyDistributed(purchase.ID)
		}

		result = Result{
			PurchaseID:        purchase.ID,
			FinalBV:           bv,
			IncomeRowsCreated: len(rows),
			LevelsPaid:        len(payouts),
			TotalIncome:       total,
			RuleID:            rule.ID,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// openPurchase loads or inserts the purchase the run will pay out.
func (e *Engine) openPurchase(ctx context.Context, purchaseRepo purchases.Repository, incomeRepo income.Repository, input Input, itemID string) (*models.Purchase, error) {
	if input.PurchaseID != nil {
		existing, err := purchaseRepo.FindByID(ctx, *input.PurchaseID)
		switch {
		case err == nil:
			if existing.BuyerID != input.BuyerID {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "purchase belongs to another buyer")
			}
			if existing.DistributedAt != nil {
				return nil, alreadyDistributed(existing.ID)
			}
			logged, err := incomeRepo.LogExists(ctx, existing.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check income log")
			}
			if logged {
				return nil, alreadyDistributed(existing.ID)
			}
			return existing, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
		}
	}

	purchase := &models.Purchase{
		BuyerID:    input.BuyerID,
		ItemID:     itemID,
		CapturedBV: input.CapturedBV,
		BV:         decimal.Zero,
	}
	if input.PurchaseID != nil {
		purchase.ID = *input.PurchaseID
	}
	if err := purchaseRepo.Create(ctx, purchase); err != nil {
		// a concurrent run inserted the same id after our lookup
		if input.PurchaseID != nil && db.IsUniqueViolation(err, db.ConstraintPurchasePK) {
			return nil, alreadyDistributed(purchase.ID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create purchase")
	}
	return purchase, nil
}

// checkChain rejects a walk that revisits a member: the tree is corrupt.
func checkChain(buyerID uuid.UUID, chain []members.Ancestor) error {
	seen := map[uuid.UUID]struct{}{buyerID: {}}
	for i, ancestor := range chain {
		if ancestor.Level != i+1 {
			return pkgerrors.New(pkgerrors.CodeInternal, "ancestor chain has a gap")
		}
		if _, dup := seen[ancestor.MemberID]; dup {
			return pkgerrors.New(pkgerrors.CodeInternal, "cycle detected in ancestor chain").
				WithDetails(map[string]string{"member_id": ancestor.MemberID.String()})
		}
		seen[ancestor.MemberID] = struct{}{}
	}
	return nil
}

func translateWriteErr(err error, action string) error {
	if db.IsUniqueViolation(err, db.ConstraintIncomePurchaseRecipient) ||
		db.IsUniqueViolation(err, db.ConstraintIncomeLogPurchase) {
		return pkgerrors.Wrap(pkgerrors.CodeAlreadyDistributed, err, "purchase already distributed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

func alreadyDistributed(purchaseID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyDistributed, "purchase already distributed").
		WithDetails(map[string]string{"purchase_id": purchaseID.String()})
}
