package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bv-engine/internal/distribution"
	"github.com/angelmondragon/bv-engine/internal/ledger"
	"github.com/angelmondragon/bv-engine/internal/members"
	"github.com/angelmondragon/bv-engine/internal/placement"
	"github.com/angelmondragon/bv-engine/internal/rules"
	"github.com/angelmondragon/bv-engine/internal/tree"
	"github.com/angelmondragon/bv-engine/pkg/config"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/pagination"
)

type stubMembers struct {
	registered members.RegisterInput
	rootName   string
	slot       placement.Slot
	member     *models.Member
	err        error
}

func (s *stubMembers) ResolvePlacement(ctx context.Context, code string) (placement.Slot, error) {
	return s.slot, s.err
}

func (s *stubMembers) Register(ctx context.Context, input members.RegisterInput) (*models.Member, error) {
	s.registered = input
	return s.member, s.err
}

func (s *stubMembers) CreateRoot(ctx context.Context, displayName string) (*models.Member, error) {
	s.rootName = displayName
	return s.member, s.err
}

func (s *stubMembers) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.member, nil
}

type stubDistributor struct {
	input  distribution.Input
	result distribution.Result
	err    error
}

func (s *stubDistributor) Distribute(ctx context.Context, input distribution.Input) (distribution.Result, error) {
	s.input = input
	return s.result, s.err
}

type stubLedger struct {
	params pagination.Params
	page   ledger.IncomePage
	rows   []ledger.PurchaseDTO
	dash   ledger.Dashboard
	err    error
}

func (s *stubLedger) MemberIncome(ctx context.Context, memberID uuid.UUID, params pagination.Params) (ledger.IncomePage, error) {
	s.params = params
	return s.page, s.err
}

func (s *stubLedger) MemberPurchases(ctx context.Context, memberID uuid.UUID) ([]ledger.PurchaseDTO, error) {
	return s.rows, s.err
}

func (s *stubLedger) Dashboard(ctx context.Context) (ledger.Dashboard, error) {
	return s.dash, s.err
}

type stubRules struct {
	created   rules.CreateRuleInput
	updated   rules.UpdateRuleInput
	activated uuid.UUID
	rule      *models.DistributionRule
	listing   rules.Listing
	err       error
}

func (s *stubRules) GetActive(ctx context.Context) (*models.DistributionRule, error) {
	return s.rule, s.err
}

func (s *stubRules) SetActive(ctx context.Context, ruleID uuid.UUID) (*models.DistributionRule, error) {
	s.activated = ruleID
	return s.rule, s.err
}

func (s *stubRules) Create(ctx context.Context, input rules.CreateRuleInput) (*models.DistributionRule, error) {
	s.created = input
	return s.rule, s.err
}

func (s *stubRules) Update(ctx context.Context, ruleID uuid.UUID, input rules.UpdateRuleInput) (*models.DistributionRule, error) {
	s.updated = input
	return s.rule, s.err
}

func (s *stubRules) List(ctx context.Context) (rules.Listing, error) {
	return s.listing, s.err
}

type stubTree struct {
	depth int
	node  *tree.Node
	err   error
}

func (s *stubTree) GetReferralTree(ctx context.Context, rootID uuid.UUID, depth int) (*tree.Node, error) {
	s.depth = depth
	return s.node, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func serve(t *testing.T, method, pattern, target string, body []byte, h http.HandlerFunc) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func sampleMember() *models.Member {
	parent := uuid.New()
	pos := enums.PositionLeft
	return &models.Member{
		ID:           uuid.New(),
		ReferralCode: "AB12CD34",
		DisplayName:  "Alice",
		ParentID:     &parent,
		Position:     &pos,
		SponsorID:    &parent,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemberRegister(t *testing.T) {
	svc := &stubMembers{member: sampleMember()}
	rec, env := serve(t, http.MethodPost, "/members/register", "/members/register",
		[]byte(`{"display_name":"  Alice  ","referral_code":"ab12cd34"}`), MemberRegister(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Alice", svc.registered.DisplayName)
	assert.Equal(t, "ab12cd34", svc.registered.SponsorReferralCode)

	var dto members.MemberDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, svc.member.ID, dto.ID)
	require.NotNil(t, dto.Position)
	assert.Equal(t, enums.PositionLeft, *dto.Position)
}

func TestMemberRegisterValidation(t *testing.T) {
	svc := &stubMembers{member: sampleMember()}

	for _, body := range []string{
		`{"display_name":""}`,
		`{"display_name":"Bob","referral_code":"short"}`,
		`{"display_name":"Bob","referral_code":"AB-12345"}`,
		`{"display_name":"Bob","unknown":true}`,
		`not json`,
	} {
		rec, env := serve(t, http.MethodPost, "/members/register", "/members/register", []byte(body), MemberRegister(svc, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code, body)
	}
}

func TestMemberRegisterSlotConflict(t *testing.T) {
	svc := &stubMembers{err: pkgerrors.New(pkgerrors.CodeSlotConflict, "placement contention, retry")}
	rec, env := serve(t, http.MethodPost, "/members/register", "/members/register",
		[]byte(`{"display_name":"Bob","referral_code":"AB12CD34"}`), MemberRegister(svc, nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeSlotConflict), env.Error.Code)
}

func TestAdminCreateRoot(t *testing.T) {
	root := sampleMember()
	root.ParentID, root.Position, root.SponsorID = nil, nil, nil
	svc := &stubMembers{member: root}

	rec, env := serve(t, http.MethodPost, "/members/root", "/members/root", []byte(`{"display_name":"Root"}`), AdminCreateRoot(svc, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Root", svc.rootName)
	assert.NotContains(t, string(env.Data), "parent_id")
}

func TestMemberGet(t *testing.T) {
	svc := &stubMembers{member: sampleMember()}
	rec, _ := serve(t, http.MethodGet, "/members/{memberId}", "/members/"+svc.member.ID.String(), nil, MemberGet(svc, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := serve(t, http.MethodGet, "/members/{memberId}", "/members/nope", nil, MemberGet(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)

	missing := &stubMembers{err: pkgerrors.New(pkgerrors.CodeNotFound, "member not found")}
	rec, _ = serve(t, http.MethodGet, "/members/{memberId}", "/members/"+uuid.NewString(), nil, MemberGet(missing, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlacementPreview(t *testing.T) {
	parent := uuid.New()
	svc := &stubMembers{slot: placement.Slot{ParentID: parent, Position: enums.PositionRight}}

	rec, env := serve(t, http.MethodGet, "/placements/{referralCode}", "/placements/AB12CD34", nil, PlacementPreview(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var slot placement.Slot
	require.NoError(t, json.Unmarshal(env.Data, &slot))
	assert.Equal(t, parent, slot.ParentID)
	assert.Equal(t, enums.PositionRight, slot.Position)
}

func TestMemberTreeClampsDepth(t *testing.T) {
	reader := &stubTree{node: &tree.Node{ID: uuid.New(), Children: []*tree.Node{}}}
	id := uuid.NewString()

	rec, env := serve(t, http.MethodGet, "/members/{memberId}/tree", "/members/"+id+"/tree?depth=50", nil, MemberTree(reader, 3, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tree.MaxDepth, reader.depth)

	var body struct {
		Depth int `json:"depth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, tree.MaxDepth, body.Depth)

	_, _ = serve(t, http.MethodGet, "/members/{memberId}/tree", "/members/"+id+"/tree", nil, MemberTree(reader, 3, nil))
	assert.Equal(t, 3, reader.depth)

	rec, _ = serve(t, http.MethodGet, "/members/{memberId}/tree", "/members/"+id+"/tree?depth=deep", nil, MemberTree(reader, 3, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, reader.depth)

	rec, env = serve(t, http.MethodGet, "/members/{memberId}/tree", "/members/"+id+"/tree?depth=99999999999999999999", nil, MemberTree(reader, 3, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tree.MaxDepth, reader.depth)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, tree.MaxDepth, body.Depth)

	rec, _ = serve(t, http.MethodGet, "/members/{memberId}/tree", "/members/"+id+"/tree?depth=-4", nil, MemberTree(reader, 3, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tree.MinDepth, reader.depth)
}

func TestPurchaseCreate(t *testing.T) {
	engine := &stubDistributor{result: distribution.Result{
		PurchaseID:        uuid.New(),
		FinalBV:           decimal.NewFromInt(100),
		IncomeRowsCreated: 2,
		LevelsPaid:        2,
		TotalIncome:       decimal.RequireFromString("15"),
	}}
	buyer := uuid.New()

	rec, env := serve(t, http.MethodPost, "/members/{memberId}/purchases", "/members/"+buyer.String()+"/purchases",
		[]byte(`{"item_id":" sku-1 ","bv":"100.50"}`), PurchaseCreate(engine, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, buyer, engine.input.BuyerID)
	assert.Equal(t, "sku-1", engine.input.ItemID)
	assert.True(t, engine.input.CapturedBV.Equal(decimal.RequireFromString("100.50")))
	assert.Nil(t, engine.input.PurchaseID)

	var result distribution.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.IncomeRowsCreated)
}

func TestPurchaseCreateForwardsPurchaseID(t *testing.T) {
	engine := &stubDistributor{}
	purchaseID := uuid.New()

	rec, _ := serve(t, http.MethodPost, "/members/{memberId}/purchases", "/members/"+uuid.NewString()+"/purchases",
		[]byte(`{"item_id":"sku","bv":10,"purchase_id":"`+purchaseID.String()+`"}`), PurchaseCreate(engine, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, engine.input.PurchaseID)
	assert.Equal(t, purchaseID, *engine.input.PurchaseID)
}

func TestPurchaseCreateMapsEngineErrors(t *testing.T) {
	tests := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodeNoActiveRule, http.StatusUnprocessableEntity},
		{pkgerrors.CodeAlreadyDistributed, http.StatusConflict},
		{pkgerrors.CodeNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		engine := &stubDistributor{err: pkgerrors.New(tt.code, "engine error")}
		rec, env := serve(t, http.MethodPost, "/members/{memberId}/purchases", "/members/"+uuid.NewString()+"/purchases",
			[]byte(`{"item_id":"sku","bv":10}`), PurchaseCreate(engine, nil))
		assert.Equal(t, tt.status, rec.Code)
		assert.Equal(t, string(tt.code), env.Error.Code)
	}
}

func TestPurchaseCreateRequiresItem(t *testing.T) {
	engine := &stubDistributor{}
	rec, _ := serve(t, http.MethodPost, "/members/{memberId}/purchases", "/members/"+uuid.NewString()+"/purchases",
		[]byte(`{"bv":10}`), PurchaseCreate(engine, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, engine.input.BuyerID)
}

func TestPurchaseList(t *testing.T) {
	svc := &stubLedger{rows: []ledger.PurchaseDTO{{ID: uuid.New(), ItemID: "sku"}}}
	rec, env := serve(t, http.MethodGet, "/members/{memberId}/purchases", "/members/"+uuid.NewString()+"/purchases", nil, PurchaseList(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []ledger.PurchaseDTO
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.Len(t, rows, 1)
}

func TestIncomeList(t *testing.T) {
	svc := &stubLedger{page: ledger.IncomePage{Items: []ledger.IncomeDTO{}, Pagination: pagination.Meta{Limit: 10, Next: "abc"}}}
	rec, env := serve(t, http.MethodGet, "/members/{memberId}/income", "/members/"+uuid.NewString()+"/income?limit=10&cursor=xyz", nil, IncomeList(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, svc.params.Limit)
	assert.Equal(t, "xyz", svc.params.Cursor)
	assert.Contains(t, string(env.Data), `"next":"abc"`)

	rec, _ = serve(t, http.MethodGet, "/members/{memberId}/income", "/members/"+uuid.NewString()+"/income?limit=500", nil, IncomeList(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRules(t *testing.T) {
	rule := &models.DistributionRule{ID: uuid.New(), BasePercentage: decimal.RequireFromString("0.1"), DecayEnabled: true, IsActive: true, Version: 3}
	svc := &stubRules{rule: rule, listing: rules.Listing{Active: rules.FromModel(rule), Recent: []rules.RuleDTO{*rules.FromModel(rule)}}}

	rec, env := serve(t, http.MethodGet, "/rules", "/rules", nil, AdminRulesList(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"active_rule"`)

	rec, _ = serve(t, http.MethodPost, "/rules", "/rules", []byte(`{"base_percentage":10,"decay_enabled":false,"is_active":true}`), AdminRuleCreate(svc, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, svc.created.BasePercentage.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, svc.created.DecayEnabled)
	assert.False(t, *svc.created.DecayEnabled)
	assert.True(t, svc.created.IsActive)

	rec, _ = serve(t, http.MethodPut, "/rules/{ruleId}", "/rules/"+rule.ID.String(), []byte(`{"decay_enabled":true}`), AdminRuleUpdate(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.updated.BasePercentage)
	require.NotNil(t, svc.updated.DecayEnabled)

	rec, _ = serve(t, http.MethodPost, "/rules/{ruleId}/activate", "/rules/"+rule.ID.String()+"/activate", nil, AdminRuleActivate(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rule.ID, svc.activated)
}

func TestAdminRuleActivateUnknown(t *testing.T) {
	svc := &stubRules{err: pkgerrors.New(pkgerrors.CodeNotFound, "rule not found")}
	rec, env := serve(t, http.MethodPost, "/rules/{ruleId}/activate", "/rules/"+uuid.NewString()+"/activate", nil, AdminRuleActivate(svc, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNotFound), env.Error.Code)
}

func TestAdminDashboard(t *testing.T) {
	svc := &stubLedger{dash: ledger.Dashboard{TotalMembers: 4, TotalBVGenerated: decimal.NewFromInt(300), TotalIncomeDistributed: decimal.RequireFromString("22.5")}}
	rec, env := serve(t, http.MethodGet, "/dashboard", "/dashboard", nil, AdminDashboard(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total_members":4`)
	assert.Contains(t, string(env.Data), `"total_income_distributed":"22.5"`)
}

func TestHealth(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec, _ := serve(t, http.MethodGet, "/health/live", "/health/live", nil, HealthLive(cfg))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-BV-Engine-Env"))

	rec, env := serve(t, http.MethodGet, "/health/ready", "/health/ready", nil, HealthReady(cfg, nil, stubPinger{}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"redis":"disabled"`)

	rec, env = serve(t, http.MethodGet, "/health/ready", "/health/ready", nil, HealthReady(cfg, nil, stubPinger{}, stubPinger{err: errors.New("down")}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), env.Error.Code)
}
