package policy

import (
	"context"
	"testing"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
)

func mustPolicy(t *testing.T, module string) *ConsentPolicy {
	t.Helper()
	p, err := NewConsentPolicy(module)
	if err != nil {
		t.Fatalf("NewConsentPolicy: %v", err)
	}
	return p
}

func TestConsentRequired_FirstPartySkips(t *testing.T) {
	p := mustPolicy(t, "")
	client := &domain.Client{ID: "c1", FirstParty: true}
	if p.ConsentRequired(context.Background(), client, nil, []string{"openid"}) {
		t.Error("first-party client must not require consent")
	}
}

func TestConsentRequired_ThirdPartyWithoutConsent(t *testing.T) {
	p := mustPolicy(t, "")
	client := &domain.Client{ID: "c1"}
	if !p.ConsentRequired(context.Background(), client, nil, []string{"openid"}) {
		t.Error("third-party client without consent must require consent")
	}
}

func TestConsentRequired_CoveredConsent(t *testing.T) {
	p := mustPolicy(t, "")
	client := &domain.Client{ID: "c1"}
	consent := &domain.Consent{
		UserID: "u1", ClientID: "c1",
		Scopes:    []string{"openid", "profile", "email"},
		GrantedAt: time.Now(),
	}
	if p.ConsentRequired(context.Background(), client, consent, []string{"openid", "email"}) {
		t.Error("covered consent must not re-prompt")
	}
}

func TestConsentRequired_PartialConsentReprompts(t *testing.T) {
	p := mustPolicy(t, "")
	client := &domain.Client{ID: "c1"}
	consent := &domain.Consent{
		UserID: "u1", ClientID: "c1",
		Scopes: []string{"openid"},
	}
	if !p.ConsentRequired(context.Background(), client, consent, []string{"openid", "email"}) {
		t.Error("consent missing a requested scope must re-prompt")
	}
}

func TestConsentRequired_CustomPolicy(t *testing.T) {
	// A deployment that always prompts, first-party or not.
	const alwaysPrompt = `package idp.consent

default consent_required = true
`
	p := mustPolicy(t, alwaysPrompt)
	client := &domain.Client{ID: "c1", FirstParty: true}
	if !p.ConsentRequired(context.Background(), client, nil, nil) {
		t.Error("custom policy should override the first-party skip")
	}
}

func TestNewConsentPolicy_BadModule(t *testing.T) {
	if _, err := NewConsentPolicy("package broken\nthis is not rego"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestHealthCheck(t *testing.T) {
	p := mustPolicy(t, "")
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
