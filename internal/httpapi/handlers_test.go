package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"zkypee/internal/audit"
	"zkypee/internal/auth"
	"zkypee/internal/billing"
	"zkypee/internal/calls"
	"zkypee/internal/ledger"
	"zkypee/internal/payments"
	"zkypee/internal/rates"
	"zkypee/internal/rbac"
	"zkypee/internal/reporting"
	"zkypee/internal/trial"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const stripeSecret = "whsec_httpapi"

type countingPlacer struct {
	mu sync.Mutex
	n  int
}

func (p *countingPlacer) InitiateCall(context.Context, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return fmt.Sprintf("CA%03d", p.n), nil
}

type testAPI struct {
	router *gin.Engine
	ledger *ledger.MemoryRepo
	audit  *audit.MemoryRepo
	placer *countingPlacer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tbl := rates.NewTable([]rates.Record{
		{Continent: "Europe", Country: "United Kingdom", RawCountryCode: "+44", Prefix: "44", MinRate: decimal.RequireFromString("0.05"), MaxRate: decimal.RequireFromString("0.09")},
		{Continent: "Europe", Country: "France", RawCountryCode: "+33", Prefix: "33", MinRate: decimal.RequireFromString("0.04"), MaxRate: decimal.RequireFromString("0.04")},
		{Continent: "North America", Country: rates.NANPCountry, RawCountryCode: "+1", Prefix: "1", MinRate: decimal.RequireFromString("0.01"), MaxRate: decimal.RequireFromString("0.02")},
	})
	rateSvc := rates.NewService(tbl, rates.DefaultRate)

	api := &testAPI{
		ledger: ledger.NewMemoryRepo(),
		audit:  audit.NewMemoryRepo(),
		placer: &countingPlacer{},
	}
	ledgerSvc := ledger.NewService(api.ledger, ledger.Options{StartingBalance: decimal.RequireFromString("5.00")})
	callStore := calls.NewMemoryStore()
	tracker := trial.NewTracker(trial.NewMemoryStore())
	coord := billing.NewCoordinator(billing.Deps{
		Rates:  rateSvc,
		Ledger: ledgerSvc,
		Trials: tracker,
		Calls:  callStore,
		Placer: api.placer,
	}, billing.Options{CallerID: "+15550000000", DebitRetries: 1, RetryBaseDelay: time.Millisecond})

	h := Handlers{
		Rates:     rateSvc,
		Ledger:    ledgerSvc,
		Trials:    tracker,
		Billing:   coord,
		Reporting: reporting.NewService(reporting.StoreRepo{Calls: callStore, Ledger: ledgerSvc}),
		Audit:     audit.NewService(api.audit),
		Stripe:    payments.NewStripeProcessor(stripeSecret),
		Payments:  payments.NewService(ledgerSvc, nil, 1, time.Millisecond),
	}

	r := gin.New()
	r.GET("/v1/rates/lookup", h.LookupRate)
	r.GET("/v1/rates", h.ListRates)
	r.GET("/v1/rates/search", h.SearchRates)
	r.GET("/v1/rates/country-code", h.GuessCountryCode)
	r.GET("/v1/trial/availability", h.TrialAvailability)
	r.POST("/v1/trial/usage", h.RecordTrialUsage)
	r.POST("/webhooks/stripe", h.StripeWebhook)
	r.POST("/v1/auth/token", h.IssueDevToken)

	// Identity comes from test headers instead of a JWT.
	v1 := r.Group("/v1", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), c.GetHeader("X-Test-User"), c.GetHeader("X-Test-Role"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, rbac.RequireUser())
	v1.GET("/me/balance", h.GetBalance)
	v1.GET("/me/transactions", h.ListTransactions)
	v1.GET("/me/usage", h.GetUsage)
	v1.POST("/calls/preflight", h.PreflightCall)
	v1.POST("/calls", h.PlaceCall)
	v1.GET("/calls/:call_id", h.GetCall)
	v1.POST("/admin/credits", rbac.RequireAnyRole(), h.AdminCredit)

	api.router = r
	return api
}

func (a *testAPI) do(method, path, userID, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestLookupRate(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/v1/rates/lookup?number=%2B44%2020%207946%200958", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res rates.Result
	decode(t, w, &res)
	if res.Country != "United Kingdom" || !res.Rate.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("unexpected result %+v", res)
	}

	if w := api.do(http.MethodGet, "/v1/rates/lookup?number=abc", "", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a number without digits, got %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/v1/rates/lookup", "", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing number, got %d", w.Code)
	}
}

func TestListAndSearchRates(t *testing.T) {
	api := newTestAPI(t)

	var list struct {
		Continents []continentRates `json:"continents"`
	}
	decode(t, api.do(http.MethodGet, "/v1/rates", "", "", nil), &list)
	if len(list.Continents) != 2 || list.Continents[0].Continent != "Europe" || len(list.Continents[0].Rates) != 2 {
		t.Fatalf("unexpected grouping %+v", list.Continents)
	}

	var search struct {
		Results []rates.Record `json:"results"`
	}
	decode(t, api.do(http.MethodGet, "/v1/rates/search?q=fran", "", "", nil), &search)
	if len(search.Results) != 1 || search.Results[0].Country != "France" {
		t.Fatalf("unexpected search results %+v", search.Results)
	}

	var guess struct {
		Found       bool   `json:"found"`
		CountryCode string `json:"country_code"`
	}
	decode(t, api.do(http.MethodGet, "/v1/rates/country-code?number=33612", "", "", nil), &guess)
	if !guess.Found || guess.CountryCode != "+33" {
		t.Fatalf("unexpected guess %+v", guess)
	}
}

func TestPreflightAndPlaceCall(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/v1/calls/preflight", "u1", rbac.RoleUser, callRequest{Destination: "+44 1234"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var q billing.Quote
	decode(t, w, &q)
	if !q.Allowed || q.EstimatedMaxMinutes != 100 {
		t.Fatalf("unexpected quote %+v", q)
	}

	w = api.do(http.MethodPost, "/v1/calls", "u1", rbac.RoleUser, callRequest{Destination: "+44 1234"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var placed billing.Placed
	decode(t, w, &placed)
	if placed.CallID != "CA001" {
		t.Fatalf("unexpected call id %q", placed.CallID)
	}

	if w := api.do(http.MethodGet, "/v1/calls/CA001", "u1", rbac.RoleUser, nil); w.Code != http.StatusOK {
		t.Fatalf("owner should read own call, got %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/v1/calls/CA001", "u2", rbac.RoleUser, nil); w.Code != http.StatusNotFound {
		t.Fatalf("other users must not see the call, got %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/v1/calls/CA001", "ops", rbac.RoleSupport, nil); w.Code != http.StatusOK {
		t.Fatalf("support should read any call, got %d", w.Code)
	}
}

func TestPlaceCall_InsufficientCreditsDoesNotDial(t *testing.T) {
	api := newTestAPI(t)
	api.ledger.SetBalance("u1", decimal.RequireFromString("0.01"))

	w := api.do(http.MethodPost, "/v1/calls", "u1", rbac.RoleUser, callRequest{Destination: "+44 1234"})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	if api.placer.n != 0 {
		t.Fatalf("denied call must not be dialed")
	}
}

func TestPlaceCall_InvalidDestination(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(http.MethodPost, "/v1/calls", "u1", rbac.RoleUser, callRequest{Destination: "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBalanceAndTransactions(t *testing.T) {
	api := newTestAPI(t)

	var acct ledger.Account
	decode(t, api.do(http.MethodGet, "/v1/me/balance", "u1", rbac.RoleUser, nil), &acct)
	if !acct.Balance.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("expected opening balance 5.00, got %s", acct.Balance)
	}

	var txs struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	decode(t, api.do(http.MethodGet, "/v1/me/transactions", "u1", rbac.RoleUser, nil), &txs)
	if len(txs.Transactions) != 1 || txs.Transactions[0].ReferenceID != ledger.OpeningGrantReference {
		t.Fatalf("expected only the opening grant, got %+v", txs.Transactions)
	}

	if w := api.do(http.MethodGet, "/v1/me/transactions?from=yesterday", "u1", rbac.RoleUser, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad range, got %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/v1/me/usage", "u1", rbac.RoleUser, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for usage, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrialFlow(t *testing.T) {
	api := newTestAPI(t)

	var a trial.Availability
	decode(t, api.do(http.MethodGet, "/v1/trial/availability?fingerprint=fp1", "", "", nil), &a)
	if !a.Available || a.Remaining != trial.MaxTrialCalls {
		t.Fatalf("unexpected availability %+v", a)
	}

	for i := 1; i <= trial.MaxTrialCalls; i++ {
		w := api.do(http.MethodPost, "/v1/trial/usage", "", "", trialUsageRequest{Fingerprint: "fp1", CallID: fmt.Sprintf("trial-%d", i), DurationSeconds: 30})
		if w.Code != http.StatusOK {
			t.Fatalf("usage %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	decode(t, api.do(http.MethodGet, "/v1/trial/availability?fingerprint=fp1", "", "", nil), &a)
	if a.Available || a.Remaining != 0 {
		t.Fatalf("allowance should be used up, got %+v", a)
	}

	w := api.do(http.MethodPost, "/v1/trial/usage", "", "", trialUsageRequest{Fingerprint: "fp1", CallID: "trial-1", DurationSeconds: 30})
	if w.Code != http.StatusOK {
		t.Fatalf("repeated usage: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, api.do(http.MethodGet, "/v1/trial/availability?fingerprint=fp2&ip=198.51.100.7", "", "", nil), &a)
	if !a.Available {
		t.Fatalf("fresh device should have its allowance, got %+v", a)
	}

	if w := api.do(http.MethodGet, "/v1/trial/availability", "", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing fingerprint: expected 400, got %d", w.Code)
	}
}

func TestAdminCredit(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]any{
		"user_id":         "u1",
		"amount":          "2.50",
		"kind":            "referral_bonus",
		"idempotency_key": "ref-42",
		"reason":          "invited a friend",
	}

	if w := api.do(http.MethodPost, "/v1/admin/credits", "u9", rbac.RoleUser, body); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", w.Code)
	}

	w := api.do(http.MethodPost, "/v1/admin/credits", "boss", rbac.RoleAdmin, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res ledger.PostResult
	decode(t, w, &res)
	if !res.Balance.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("expected 7.50, got %s", res.Balance)
	}

	// Replays are absorbed by the idempotency key and not audited twice.
	decode(t, api.do(http.MethodPost, "/v1/admin/credits", "boss", rbac.RoleAdmin, body), &res)
	if !res.Duplicate || !res.Balance.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("replay should be a duplicate, got %+v", res)
	}
	events := api.audit.Events()
	if len(events) != 1 || events[0].TargetUserID != "u1" || events[0].ActorUserID != "boss" {
		t.Fatalf("unexpected audit trail %+v", events)
	}

	body["kind"] = "purchase"
	if w := api.do(http.MethodPost, "/v1/admin/credits", "boss", rbac.RoleAdmin, body); w.Code != http.StatusBadRequest {
		t.Fatalf("purchase kind: expected 400, got %d", w.Code)
	}
}

func signedStripeEvent(t *testing.T, eventType string, session map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": session},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: raw, Secret: stripeSecret, Timestamp: time.Now()})
	return sp.Payload, sp.Header
}

func (a *testAPI) postStripe(payload []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(stripeSignatureHeader, sig)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestStripeWebhook(t *testing.T) {
	api := newTestAPI(t)
	payload, sig := signedStripeEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"amount_total":        1000,
		"currency":            "usd",
		"payment_status":      "paid",
		"client_reference_id": "u1",
	})

	for i := 0; i < 2; i++ {
		w := api.postStripe(payload, sig)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}
	acct, _ := ledger.NewService(api.ledger, ledger.Options{}).Account(context.Background(), "u1")
	if !acct.Balance.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected one credit of 10.00 on top of 5.00, got %s", acct.Balance)
	}

	if w := api.postStripe(payload, "t=1,v1=bad"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: expected 400, got %d", w.Code)
	}

	other, otherSig := signedStripeEvent(t, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	if w := api.postStripe(other, otherSig); w.Code != http.StatusOK {
		t.Fatalf("ignored event: expected 200, got %d", w.Code)
	}
}

func TestIssueDevToken_DisabledByDefault(t *testing.T) {
	api := newTestAPI(t)
	if w := api.do(http.MethodPost, "/v1/auth/token", "", "", tokenRequest{UserID: "u1"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
