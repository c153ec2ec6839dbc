package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"

	"contractdesk/internal/types"
)

func ptr[T any](v T) *T { return &v }

func testDraft() *types.PlanDraft {
	yearly := types.PeriodYearly
	return &types.PlanDraft{
		ID:             "d1",
		OrganizationID: "org_1",
		Name:           "Growth",
		PlanType:       types.PlanTypePerUser,
		Version:        4,
		Currencies:     types.CurrencySet{Supported: []types.CurrencyCode{"USD", "JPY"}, Default: "USD"},
		Features: types.FeatureRows{
			{FeatureID: "sso", Name: "SSO", Enabled: true, IsSpecialFeature: true, PricingPeriod: &yearly,
				Prices: types.PriceMap{"USD": 15, "JPY": 2200}},
			{FeatureID: "reports", Name: "Reports", Enabled: true},
		},
		Notifications: types.NotificationRows{
			{Method: "Email", Category: types.CategoryTransactional, Enabled: true, Prices: types.PriceMap{"USD": 0.05, "JPY": 7}},
			{Method: "SMS", Category: types.CategoryDirect, Enabled: false, Prices: types.PriceMap{"USD": 0.25}},
		},
		Tiers: types.TierRows{
			{ID: "t1", Label: "0 - 9 Users", MaxValue: ptr[int64](9), Prices: types.PriceMap{"USD": 25, "JPY": 3600}},
		},
	}
}

// fakeStripe records form posts and answers with sequential object IDs.
type fakeStripe struct {
	mu      sync.Mutex
	posts   map[string]url.Values
	keys    map[string]string
	counter atomic.Int32
	failOn  string
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{posts: map[string]url.Values{}, keys: map[string]string{}}
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	key := r.Header.Get("Idempotency-Key")

	f.mu.Lock()
	f.posts[key] = r.PostForm
	f.keys[key] = r.URL.Path
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer sk_test" || r.Header.Get("Stripe-Version") != stripe.APIVersion {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"bad key"}}`)
		return
	}
	if f.failOn != "" && key == f.failOn {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer","param":"unit_amount","message":"Invalid integer"}}`)
		return
	}

	prefix := "price"
	if r.URL.Path == "/v1/products" {
		prefix = "prod"
	}
	fmt.Fprintf(w, `{"id":"%s_%d"}`, prefix, f.counter.Add(1))
}

func newTestSync(serverURL string) *StripePriceSync {
	return NewStripePriceSync(http.DefaultClient,
		StripeConfig{SecretKey: "sk_test", BaseURL: serverURL + "/"},
		WithWaitFunc(noWait))
}

func TestSyncPlan_CreatesProductAndPrices(t *testing.T) {
	fake := newFakeStripe()
	server := httptest.NewServer(fake)
	defer server.Close()

	res, err := newTestSync(server.URL).SyncPlan(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("SyncPlan: %v", err)
	}

	if res.ProductID != "prod_1" {
		t.Errorf("ProductID = %q", res.ProductID)
	}
	// sso, Email notification and the tier; SMS is disabled and reports is included.
	if len(res.PriceIDs) != 3 {
		t.Fatalf("expected 3 prices, got %d", len(res.PriceIDs))
	}
	for i, id := range res.PriceIDs {
		if id == "" {
			t.Errorf("price %d has no id", i)
		}
	}

	product := fake.posts["plan-d1-v4-product"]
	if product.Get("name") != "Growth" || product.Get("metadata[draft_id]") != "d1" {
		t.Errorf("product form = %v", product)
	}

	sso := fake.posts["plan-d1-v4-feature-sso"]
	if sso == nil {
		t.Fatal("no price posted for sso")
	}
	checks := map[string]string{
		"product":                            "prod_1",
		"currency":                           "usd",
		"unit_amount":                        "1500",
		"currency_options[jpy][unit_amount]": "2200",
		"recurring[interval]":                "year",
		"metadata[row_kind]":                 "feature",
	}
	for field, want := range checks {
		if got := sso.Get(field); got != want {
			t.Errorf("sso %s = %q, want %q", field, got, want)
		}
	}

	email := fake.posts["plan-d1-v4-notification-email-transactional"]
	if email.Get("unit_amount") != "5" || email.Get("currency_options[jpy][unit_amount]") != "7" {
		t.Errorf("email price form = %v", email)
	}
	if _, ok := fake.posts["plan-d1-v4-notification-sms-direct"]; ok {
		t.Error("disabled notification should not be synced")
	}
	if fake.posts["plan-d1-v4-tier-t1"].Get("nickname") != "0 - 9 Users" {
		t.Error("tier price missing nickname")
	}
}

func TestSyncPlan_PriceErrorMapsToUpstreamStripe(t *testing.T) {
	fake := newFakeStripe()
	fake.failOn = "plan-d1-v4-tier-t1"
	server := httptest.NewServer(fake)
	defer server.Close()

	_, err := newTestSync(server.URL).SyncPlan(context.Background(), testDraft())

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamStripe {
		t.Errorf("code = %s", appErr.Code)
	}
	if appErr.Details["param"] != "unit_amount" {
		t.Errorf("details = %v", appErr.Details)
	}
}

func TestSyncPlan_NoCurrencies(t *testing.T) {
	d := testDraft()
	d.Currencies = types.CurrencySet{}

	_, err := newTestSync("http://127.0.0.1:0").SyncPlan(context.Background(), d)

	if !types.HasCode(err, types.ErrCodeValidationInvalidCurrency) {
		t.Errorf("expected invalid currency, got %v", err)
	}
}

func TestSyncPlan_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "<html>bad gateway</html>")
	}))
	defer server.Close()

	_, err := newTestSync(server.URL).SyncPlan(context.Background(), testDraft())

	if !types.HasCode(err, types.ErrCodeUpstreamStripe) {
		t.Errorf("expected upstream_stripe_unavailable, got %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		code   types.CurrencyCode
		amount float64
		want   int64
	}{
		{"USD", 19.99, 1999},
		{"EUR", 0.05, 5},
		{"USD", 0.125, 13},
		{"JPY", 2200, 2200},
		{"KRW", 1500.4, 1500},
		{"KRW", 1500.5, 1501},
		{"USD", 1.005, 101},
		{"USD", 0.285, 29},
		{"USD", 2.675, 268},
		{"USD", -1.005, -101},
		{"USD", 0, 0},
	}
	for _, tt := range tests {
		if got := MinorUnits(tt.code, tt.amount); got != tt.want {
			t.Errorf("MinorUnits(%s, %v) = %d, want %d", tt.code, tt.amount, got, tt.want)
		}
	}
}

func TestStubPriceSync(t *testing.T) {
	res, err := NewStubPriceSync(nil).SyncPlan(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("SyncPlan: %v", err)
	}
	if res.ProductID != "prod_stub_d1" {
		t.Errorf("ProductID = %q", res.ProductID)
	}
	if len(res.PriceIDs) != 3 || res.PriceIDs[2] != "price_stub_d1_tier-t1" {
		t.Errorf("PriceIDs = %v", res.PriceIDs)
	}
}
