package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"contractdesk/internal/catalog"
	"contractdesk/internal/config"
	"contractdesk/internal/core"
	"contractdesk/internal/queue"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testConfig() *config.Config {
	return &config.Config{
		Environment:   "local",
		LogLevel:      "error",
		CatalogSource: "static",
		Server: config.ServerConfig{
			Port: "8080",
		},
	}
}

// buildTestServer wires the server without a database: no rate limiting, no
// idempotency store and the built-in catalog.
func buildTestServer(t *testing.T, pinger core.Pinger) *core.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := newServer(testConfig(), logger, dependencies{
		Pinger:    pinger,
		Catalog:   catalog.Default(),
		Publisher: queue.LogPublisher{Logger: logger},
	})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pinger     core.Pinger
		wantStatus int
		wantBody   string
	}{
		{"database up", fakePinger{}, http.StatusOK, "healthy"},
		{"database down", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := buildTestServer(t, tt.pinger)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("GET /health: got %d, want %d; body: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp["status"] != tt.wantBody {
				t.Errorf("status = %v, want %q", resp["status"], tt.wantBody)
			}
		})
	}
}

func TestCatalogRoute_RequiresOrganization(t *testing.T) {
	srv := buildTestServer(t, fakePinger{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/catalog/features", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without org header: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog/features", nil)
	req.Header.Set(core.OrganizationHeader, "org_1")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with org header: got %d; body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "e_signature") {
		t.Errorf("expected built-in catalog in body, got %s", rec.Body.String())
	}
}

func TestLambdaHandler_ProxiesRequest(t *testing.T) {
	var gotPath, gotQuery, gotOrg, gotBody, gotAddr string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddr = r.RemoteAddr
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("limit")
		gotOrg = r.Header.Get(core.OrganizationHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "a=1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	event := events.APIGatewayV2HTTPRequest{
		RawPath:         "/v1/plan-drafts",
		RawQueryString:  "limit=5",
		Headers:         map[string]string{"x-organization-id": "org_1"},
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"name":"Growth"}`)),
		IsBase64Encoded: true,
	}
	event.RequestContext.DomainName = "api.example.com"
	event.RequestContext.HTTP.Method = http.MethodPost
	event.RequestContext.HTTP.SourceIP = "203.0.113.9"

	resp, err := lambdaHandler(h)(context.Background(), event)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	if gotPath != "/v1/plan-drafts" || gotQuery != "5" || gotOrg != "org_1" || gotBody != `{"name":"Growth"}` {
		t.Errorf("request not proxied: path=%q limit=%q org=%q body=%q", gotPath, gotQuery, gotOrg, gotBody)
	}
	if gotAddr != "203.0.113.9" {
		t.Errorf("remote addr = %q", gotAddr)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if resp.IsBase64Encoded || resp.Body != `{"ok":true}` {
		t.Errorf("body = %q (base64=%v)", resp.Body, resp.IsBase64Encoded)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("content type = %q", resp.Headers["Content-Type"])
	}
	if len(resp.Cookies) != 1 || resp.Cookies[0] != "a=1" {
		t.Errorf("cookies = %v", resp.Cookies)
	}
}

func TestLambdaHandler_EncodesBinaryBodies(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte{0x1f, 0x8b, 0x08})
	})

	event := events.APIGatewayV2HTTPRequest{RawPath: "/health"}
	event.RequestContext.HTTP.Method = http.MethodGet
	resp, err := lambdaHandler(h)(context.Background(), event)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	if resp.StatusCode != http.StatusOK || !resp.IsBase64Encoded {
		t.Fatalf("got status %d base64=%v", resp.StatusCode, resp.IsBase64Encoded)
	}
	if resp.Body != base64.StdEncoding.EncodeToString([]byte{0x1f, 0x8b, 0x08}) {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestLambdaHandler_ServesAPIRoutes(t *testing.T) {
	srv := buildTestServer(t, fakePinger{})

	event := events.APIGatewayV2HTTPRequest{
		RawPath: "/v1/catalog/features",
		Headers: map[string]string{"x-organization-id": "org_1"},
	}
	event.RequestContext.HTTP.Method = http.MethodGet

	resp, err := lambdaHandler(srv.Handler())(context.Background(), event)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; body: %s", resp.StatusCode, resp.Body)
	}
	if !strings.Contains(resp.Body, "e_signature") {
		t.Errorf("expected built-in catalog in body, got %s", resp.Body)
	}
}

func TestIsLambdaEnvironment(t *testing.T) {
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")

	if isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected false when no Lambda env vars are set")
	}

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "localhost:8080")
	if !isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected true when AWS_LAMBDA_RUNTIME_API is set")
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if newLogger(level) == nil {
				t.Fatalf("newLogger(%q) returned nil", level)
			}
		})
	}
}
