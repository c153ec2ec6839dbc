package config

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestSecretStringRedaction(t *testing.T) {
	secret := SecretString("sk_live_123")

	if got := fmt.Sprintf("%v", secret); got != "***REDACTED***" {
		t.Errorf("fmt %%v = %q, want redacted", got)
	}
	if got := secret.Unmask(); got != "sk_live_123" {
		t.Errorf("Unmask() = %q, want raw value", got)
	}

	cfg := BillingConfig{StripeSecretKey: secret}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if string(raw) != `{"StripeSecretKey":"***REDACTED***","StripeBaseURL":""}` {
		t.Errorf("marshalled config leaks secret: %s", raw)
	}
}

func TestIsLocal(t *testing.T) {
	if !(&Config{Environment: "local"}).IsLocal() {
		t.Error("local environment should report IsLocal")
	}
	if (&Config{Environment: "prod"}).IsLocal() {
		t.Error("prod environment should not report IsLocal")
	}
}

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	if info.Version != "dev" || info.Commit != "none" || info.BuildTime != "unknown" {
		t.Errorf("NewBuildInfo() = %+v, want dev/none/unknown", info)
	}
}
