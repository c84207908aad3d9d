package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security/securitytest"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

type fakeClients struct {
	byID map[string]*domain.Client
}

func (f *fakeClients) GetByID(_ context.Context, id string) (*domain.Client, error) {
	return f.byID[id], nil
}

func (f *fakeClients) Create(_ context.Context, c *domain.Client) error {
	f.byID[c.ID] = c
	return nil
}

type fakeCodes struct {
	mu   sync.Mutex
	byID map[string]*domain.AuthorizationCode
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{byID: make(map[string]*domain.AuthorizationCode)}
}

func (f *fakeCodes) Get(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[code]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCodes) Create(_ context.Context, c *domain.AuthorizationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.Code] = &cp
	return nil
}

func (f *fakeCodes) Consume(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[code]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (f *fakeCodes) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, c := range f.byID {
		if c.Expired(now) {
			delete(f.byID, k)
			n++
		}
	}
	return n, nil
}

type fakeConsents struct {
	byKey map[string]*domain.Consent
}

func newFakeConsents() *fakeConsents {
	return &fakeConsents{byKey: make(map[string]*domain.Consent)}
}

func (f *fakeConsents) Get(_ context.Context, userID, clientID string) (*domain.Consent, error) {
	return f.byKey[userID+"/"+clientID], nil
}

func (f *fakeConsents) Upsert(_ context.Context, c *domain.Consent) error {
	f.byKey[c.UserID+"/"+c.ClientID] = c
	return nil
}

type fakeUsers struct {
	byID map[string]*userdomain.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	return f.byID[id], nil
}

// stubDecider mirrors the default policy without pulling OPA into these tests.
type stubDecider struct{}

func (stubDecider) ConsentRequired(_ context.Context, client *domain.Client, consent *domain.Consent, scopes []string) bool {
	if client.FirstParty {
		return false
	}
	return consent == nil || !consent.Covers(scopes)
}

type brokerFixture struct {
	broker   *Broker
	clients  *fakeClients
	codes    *fakeCodes
	consents *fakeConsents
	tokens   *security.TokenProvider
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	t.Helper()
	hasher := security.NewHasher(8*1024, 1, 1)
	secretHash, err := hasher.Hash([]byte("confidential-secret"))
	if err != nil {
		t.Fatal(err)
	}
	clients := &fakeClients{byID: map[string]*domain.Client{
		"web-app": {
			ID: "web-app", Name: "Web App",
			RedirectURIs: []string{"https://app.example.com/cb"},
			FirstParty:   true,
			Public:       true,
			GrantTypes:   []string{"authorization_code"},
		},
		"partner": {
			ID: "partner", Name: "Partner",
			SecretHash:   secretHash,
			RedirectURIs: []string{"https://partner.example.com/cb"},
			Public:       false,
			GrantTypes:   []string{"authorization_code"},
		},
	}}
	users := &fakeUsers{byID: map[string]*userdomain.User{
		"u1": {ID: "u1", Email: "alice@example.com", Status: userdomain.UserStatusActive},
	}}
	codes := newFakeCodes()
	consents := newFakeConsents()
	tokens := securitytest.NewTokenProvider(t)
	return &brokerFixture{
		broker:   NewBroker(clients, codes, consents, users, tokens, hasher, stubDecider{}),
		clients:  clients,
		codes:    codes,
		consents: consents,
		tokens:   tokens,
	}
}

func pkcePair() (verifier, challenge string) {
	verifier = "test-verifier-0123456789-0123456789-0123456789"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

func authorizeRequest(challenge string) AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:            "web-app",
		RedirectURI:         "https://app.example.com/cb",
		ResponseType:        "code",
		Scope:               "openid profile",
		Nonce:               "n-1",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		UserID:              "u1",
	}
}

func TestAuthorize_IssuesSingleUseCode(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()

	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	stored, _ := f.codes.Get(context.Background(), code)
	if stored == nil {
		t.Fatal("code not persisted")
	}
	if stored.Used {
		t.Error("fresh code must not be used")
	}
	if got := stored.ExpiresAt.Sub(stored.CreatedAt); got != CodeTTL {
		t.Errorf("code ttl = %v, want %v", got, CodeTTL)
	}
}

func TestAuthorize_RejectsNonCodeResponseType(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()
	req := authorizeRequest(challenge)
	req.ResponseType = "token"

	_, err := f.broker.Authorize(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestAuthorize_PKCEIsMandatory(t *testing.T) {
	f := newBrokerFixture(t)
	req := authorizeRequest("")

	_, err := f.broker.Authorize(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestAuthorize_RejectsPlainChallengeMethod(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()
	req := authorizeRequest(challenge)
	req.CodeChallengeMethod = "plain"

	_, err := f.broker.Authorize(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestAuthorize_AnonymousNeedsLogin(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()
	req := authorizeRequest(challenge)
	req.UserID = ""

	_, err := f.broker.Authorize(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindUnauthorized || apperr.CodeOf(err) != "login_required" {
		t.Fatalf("err = %v, want Unauthorized/login_required", err)
	}
}

func TestAuthorize_RedirectMustMatchExactly(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()
	cases := []string{
		"https://app.example.com/cb/extra",
		"https://app.example.com/CB",
		"https://evil.example.com/cb",
	}
	for _, uri := range cases {
		req := authorizeRequest(challenge)
		req.RedirectURI = uri
		_, err := f.broker.Authorize(context.Background(), req)
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Errorf("redirect %q: kind = %v, want Unauthorized", uri, apperr.KindOf(err))
		}
	}
}

func TestAuthorize_UnknownClient(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()
	req := authorizeRequest(challenge)
	req.ClientID = "ghost"

	_, err := f.broker.Authorize(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("kind = %v, want Unauthorized", apperr.KindOf(err))
	}
}

func TestAuthorize_ThirdPartyNeedsConsent(t *testing.T) {
	f := newBrokerFixture(t)
	_, challenge := pkcePair()
	req := authorizeRequest(challenge)
	req.ClientID = "partner"
	req.RedirectURI = "https://partner.example.com/cb"

	_, err := f.broker.Authorize(context.Background(), req)
	if apperr.CodeOf(err) != "consent_required" {
		t.Fatalf("err = %v, want consent_required", err)
	}

	if err := f.broker.GrantConsent(context.Background(), "u1", "partner", []string{"openid", "profile"}); err != nil {
		t.Fatalf("GrantConsent: %v", err)
	}
	if _, err := f.broker.Authorize(context.Background(), req); err != nil {
		t.Fatalf("Authorize after consent: %v", err)
	}
}

func TestToken_RoundTrip(t *testing.T) {
	f := newBrokerFixture(t)
	verifier, challenge := pkcePair()
	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	resp, err := f.broker.Token(context.Background(), TokenRequest{
		Code:         code,
		CodeVerifier: verifier,
		ClientID:     "web-app",
		RedirectURI:  "https://app.example.com/cb",
	})
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q", resp.TokenType)
	}
	if resp.ExpiresIn <= 0 {
		t.Errorf("expires_in = %d", resp.ExpiresIn)
	}

	access, err := f.tokens.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if access.Subject != "u1" {
		t.Errorf("sub = %q", access.Subject)
	}
	aud, _ := access.GetAudience()
	if len(aud) != 1 || aud[0] != "web-app" {
		t.Errorf("aud = %v, want [web-app]", aud)
	}

	id, err := f.tokens.Verify(resp.IDToken)
	if err != nil {
		t.Fatalf("verify id token: %v", err)
	}
	if id.Nonce != "n-1" {
		t.Errorf("nonce = %q, want n-1", id.Nonce)
	}
}

func TestToken_DoubleRedemption(t *testing.T) {
	f := newBrokerFixture(t)
	verifier, challenge := pkcePair()
	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	req := TokenRequest{
		Code:         code,
		CodeVerifier: verifier,
		ClientID:     "web-app",
		RedirectURI:  "https://app.example.com/cb",
	}
	if _, err := f.broker.Token(context.Background(), req); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	_, err = f.broker.Token(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("second redemption kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestToken_ConcurrentRedemptionHasOneWinner(t *testing.T) {
	f := newBrokerFixture(t)
	verifier, challenge := pkcePair()
	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	req := TokenRequest{
		Code:         code,
		CodeVerifier: verifier,
		ClientID:     "web-app",
		RedirectURI:  "https://app.example.com/cb",
	}

	const n = 8
	results := make(chan error, n)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		go func() {
			start.Wait()
			_, err := f.broker.Token(context.Background(), req)
			results <- err
		}()
	}
	start.Done()

	var wins int
	for i := 0; i < n; i++ {
		if err := <-results; err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestToken_WrongVerifier(t *testing.T) {
	f := newBrokerFixture(t)
	verifier, challenge := pkcePair()
	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	// A single flipped byte in the real verifier must fail the same as a
	// wholly different one.
	flipped := []byte(verifier)
	flipped[0] ^= 0x01
	for _, bad := range []string{"not-the-verifier", string(flipped)} {
		_, err = f.broker.Token(context.Background(), TokenRequest{
			Code:         code,
			CodeVerifier: bad,
			ClientID:     "web-app",
			RedirectURI:  "https://app.example.com/cb",
		})
		if apperr.KindOf(err) != apperr.KindBadRequest {
			t.Fatalf("verifier %q: kind = %v, want BadRequest", bad, apperr.KindOf(err))
		}
	}
	// A failed PKCE check must not burn the code.
	stored, _ := f.codes.Get(context.Background(), code)
	if stored.Used {
		t.Error("code must stay redeemable after a failed verifier")
	}
}

func TestToken_ExpiredCode(t *testing.T) {
	f := newBrokerFixture(t)
	verifier, challenge := pkcePair()
	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	f.broker.nowF = func() time.Time { return time.Now().Add(CodeTTL + time.Minute) }

	_, err = f.broker.Token(context.Background(), TokenRequest{
		Code:         code,
		CodeVerifier: verifier,
		ClientID:     "web-app",
		RedirectURI:  "https://app.example.com/cb",
	})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestToken_ClientMismatch(t *testing.T) {
	f := newBrokerFixture(t)
	verifier, challenge := pkcePair()
	code, err := f.broker.Authorize(context.Background(), authorizeRequest(challenge))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	_, err = f.broker.Token(context.Background(), TokenRequest{
		Code:         code,
		CodeVerifier: verifier,
		ClientID:     "partner",
		ClientSecret: "confidential-secret",
		RedirectURI:  "https://app.example.com/cb",
	})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestToken_ConfidentialClientSecret(t *testing.T) {
	f := newBrokerFixture(t)
	if err := f.broker.GrantConsent(context.Background(), "u1", "partner", []string{"openid"}); err != nil {
		t.Fatal(err)
	}
	verifier, challenge := pkcePair()
	req := authorizeRequest(challenge)
	req.ClientID = "partner"
	req.RedirectURI = "https://partner.example.com/cb"
	req.Scope = "openid"
	code, err := f.broker.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	tokenReq := TokenRequest{
		Code:         code,
		CodeVerifier: verifier,
		ClientID:     "partner",
		ClientSecret: "wrong-secret",
		RedirectURI:  "https://partner.example.com/cb",
	}
	if _, err := f.broker.Token(context.Background(), tokenReq); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("wrong secret kind = %v, want Unauthorized", apperr.KindOf(err))
	}

	tokenReq.ClientSecret = "confidential-secret"
	if _, err := f.broker.Token(context.Background(), tokenReq); err != nil {
		t.Fatalf("Token with correct secret: %v", err)
	}
}

func TestGrantConsent_Idempotent(t *testing.T) {
	f := newBrokerFixture(t)
	for i := 0; i < 2; i++ {
		if err := f.broker.GrantConsent(context.Background(), "u1", "partner", []string{"openid", "email"}); err != nil {
			t.Fatalf("GrantConsent #%d: %v", i, err)
		}
	}
	c, err := f.broker.ConsentFor(context.Background(), "u1", "partner")
	if err != nil || c == nil {
		t.Fatalf("ConsentFor: %v, %v", c, err)
	}
	if !c.Covers([]string{"openid", "email"}) {
		t.Errorf("scopes = %v", c.Scopes)
	}
}
