// Package policy decides when an authorization request needs a consent step.
// The decision is a Rego policy evaluated in-process with OPA so deployments
// can swap in their own rules without touching the broker.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
)

const consentQuery = "data.idp.consent.consent_required"

// Default policy: first-party clients never prompt; everyone else needs a
// stored consent covering every requested scope.
const defaultConsentPolicy = `package idp.consent

default consent_required = false

consent_required if {
	not input.client.first_party
	not input.consent.present
}

consent_required if {
	not input.client.first_party
	not input.consent.covers_requested
}
`

// ConsentPolicy evaluates the consent-required decision for authorize requests.
type ConsentPolicy struct {
	compiler *ast.Compiler
}

// NewConsentPolicy compiles the given Rego module, or the default policy when
// module is empty.
func NewConsentPolicy(module string) (*ConsentPolicy, error) {
	if module == "" {
		module = defaultConsentPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"consent.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile consent policy: %w", err)
	}
	return &ConsentPolicy{compiler: compiler}, nil
}

// ConsentRequired reports whether the request must be routed through a consent
// step. Evaluation failures fail closed for third-party clients: prompting an
// already-consented user is recoverable, skipping a required prompt is not.
func (p *ConsentPolicy) ConsentRequired(ctx context.Context, client *domain.Client, consent *domain.Consent, requestedScopes []string) bool {
	input := map[string]interface{}{
		"client": map[string]interface{}{
			"id":          client.ID,
			"first_party": client.FirstParty,
		},
		"consent": map[string]interface{}{
			"present":          consent != nil,
			"covers_requested": consent != nil && consent.Covers(requestedScopes),
		},
		"scopes": requestedScopes,
	}

	q := rego.New(
		rego.Query(consentQuery),
		rego.Compiler(p.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		slog.Warn("consent policy evaluation failed", "client_id", client.ID, "error", err)
		return !client.FirstParty
	}
	required, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		slog.Warn("consent policy returned non-boolean", "client_id", client.ID)
		return !client.FirstParty
	}
	return required
}

// HealthCheck verifies the compiled policy evaluates against a minimal input.
func (p *ConsentPolicy) HealthCheck(ctx context.Context) error {
	client := &domain.Client{ID: "healthcheck", FirstParty: true}
	q := rego.New(
		rego.Query(consentQuery),
		rego.Compiler(p.compiler),
		rego.Input(map[string]interface{}{
			"client":  map[string]interface{}{"id": client.ID, "first_party": true},
			"consent": map[string]interface{}{"present": false, "covers_requested": false},
			"scopes":  []string{},
		}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval consent policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("consent policy query returned no result")
	}
	return nil
}
