package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/auth"
	oauthdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/oauth/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security/securitytest"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/server/principal"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/session"
	sessiondomain "github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

type fakeSessions struct {
	sessions map[string]*sessiondomain.Session
	users    map[string]*userdomain.User
	revoked  map[string]bool
	expired  map[string]bool
}

func (f *fakeSessions) Resolve(_ context.Context, id string) (*sessiondomain.Session, *userdomain.User, error) {
	if f.revoked[id] {
		return nil, nil, session.ErrSessionRevoked
	}
	if f.expired[id] {
		return nil, nil, session.ErrSessionExpired
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil, session.ErrSessionNotFound
	}
	return s, f.users[s.UserID], nil
}

type fakeUsers struct {
	byID map[string]*userdomain.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	return f.byID[id], nil
}

type fakeRecords struct {
	byID map[string]*oauthdomain.AccessTokenRecord
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (*oauthdomain.AccessTokenRecord, error) {
	return f.byID[id], nil
}

type gateFixture struct {
	gate     *Gate
	tokens   *security.TokenProvider
	sessions *fakeSessions
	records  *fakeRecords
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	alice := &userdomain.User{ID: "u1", Email: "alice@example.com", Status: userdomain.UserStatusActive}
	sessions := &fakeSessions{
		sessions: map[string]*sessiondomain.Session{
			"s1": {ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		},
		users:   map[string]*userdomain.User{"u1": alice},
		revoked: map[string]bool{},
		expired: map[string]bool{},
	}
	users := &fakeUsers{byID: map[string]*userdomain.User{"u1": alice}}
	records := &fakeRecords{byID: map[string]*oauthdomain.AccessTokenRecord{}}
	tokens := securitytest.NewTokenProvider(t)
	return &gateFixture{
		gate:     NewGate(tokens, sessions, users, records),
		tokens:   tokens,
		sessions: sessions,
		records:  records,
	}
}

// echoPrincipal records the principal the gate attached.
func echoPrincipal(got *principal.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := principal.FromContext(r.Context()); ok {
			*got = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if decorate != nil {
		decorate(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGate_MissingToken(t *testing.T) {
	f := newGateFixture(t)
	rr := doRequest(t, f.gate.Require(echoPrincipal(&principal.Principal{})), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGate_SessionTokenFromHeader(t *testing.T) {
	f := newGateFixture(t)
	token, _, err := f.tokens.Mint("s1", "u1", "alice@example.com", "")
	if err != nil {
		t.Fatal(err)
	}

	var got principal.Principal
	rr := doRequest(t, f.gate.Require(echoPrincipal(&got)), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.UserID != "u1" || got.SessionID != "s1" {
		t.Errorf("principal = %+v", got)
	}
	if got.Role != "user" {
		t.Errorf("role = %q, want baseline user", got.Role)
	}
}

func TestGate_SessionTokenFromCookie(t *testing.T) {
	f := newGateFixture(t)
	token, _, err := f.tokens.Mint("s1", "u1", "alice@example.com", "")
	if err != nil {
		t.Fatal(err)
	}

	var got principal.Principal
	rr := doRequest(t, f.gate.Require(echoPrincipal(&got)), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: auth.AccessTokenCookie, Value: token})
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.SessionID != "s1" {
		t.Errorf("principal = %+v", got)
	}
}

func TestGate_RevokedSession(t *testing.T) {
	f := newGateFixture(t)
	f.sessions.revoked["s1"] = true
	token, _, _ := f.tokens.Mint("s1", "u1", "alice@example.com", "")

	rr := doRequest(t, f.gate.Require(echoPrincipal(&principal.Principal{})), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGate_ExpiredSession(t *testing.T) {
	f := newGateFixture(t)
	f.sessions.expired["s1"] = true
	token, _, _ := f.tokens.Mint("s1", "u1", "alice@example.com", "")

	rr := doRequest(t, f.gate.Require(echoPrincipal(&principal.Principal{})), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGate_JtiFallsBackToTokenRecord(t *testing.T) {
	f := newGateFixture(t)
	// A grant token whose jti is a record, not a session.
	token, _, _ := f.tokens.Mint("grant-1", "u1", "alice@example.com", "")
	f.records.byID["grant-1"] = &oauthdomain.AccessTokenRecord{
		ID: "grant-1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour),
	}

	var got principal.Principal
	rr := doRequest(t, f.gate.Require(echoPrincipal(&got)), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.UserID != "u1" {
		t.Errorf("principal = %+v", got)
	}
}

func TestGate_JtiResolvesNowhere(t *testing.T) {
	f := newGateFixture(t)
	token, _, _ := f.tokens.Mint("ghost", "u1", "alice@example.com", "")

	rr := doRequest(t, f.gate.Require(echoPrincipal(&principal.Principal{})), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGate_NoJtiResolvesBySubject(t *testing.T) {
	f := newGateFixture(t)
	token, _, err := f.tokens.MintForAudience("u1", "alice@example.com", "", "some-client", "", 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	var got principal.Principal
	rr := doRequest(t, f.gate.Require(echoPrincipal(&got)), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.UserID != "u1" || got.SessionID != "" {
		t.Errorf("principal = %+v", got)
	}
}

func TestGate_OpaqueTokenRecord(t *testing.T) {
	f := newGateFixture(t)
	f.records.byID["opaque-xyz"] = &oauthdomain.AccessTokenRecord{
		ID: "opaque-xyz", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour),
	}

	var got principal.Principal
	rr := doRequest(t, f.gate.Require(echoPrincipal(&got)), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer opaque-xyz")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.UserID != "u1" {
		t.Errorf("principal = %+v", got)
	}
}

func TestGate_ExpiredOpaqueRecord(t *testing.T) {
	f := newGateFixture(t)
	f.records.byID["opaque-xyz"] = &oauthdomain.AccessTokenRecord{
		ID: "opaque-xyz", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute),
	}

	rr := doRequest(t, f.gate.Require(echoPrincipal(&principal.Principal{})), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer opaque-xyz")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGate_ForgedJWTGetsNoOpaqueFallback(t *testing.T) {
	f := newGateFixture(t)
	// Three segments means JWT; a failed verification must not be retried
	// as an opaque lookup even if a record with that exact value exists.
	forged := "aaa.bbb.ccc"
	f.records.byID[forged] = &oauthdomain.AccessTokenRecord{
		ID: forged, UserID: "u1", ExpiresAt: time.Now().Add(time.Hour),
	}

	rr := doRequest(t, f.gate.Require(echoPrincipal(&principal.Principal{})), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+forged)
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGate_LoginThenRevoke(t *testing.T) {
	f := newGateFixture(t)
	token, _, _ := f.tokens.Mint("s1", "u1", "alice@example.com", "")
	h := f.gate.Require(echoPrincipal(&principal.Principal{}))
	withToken := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	if rr := doRequest(t, h, withToken); rr.Code != http.StatusOK {
		t.Fatalf("before revoke: status = %d, want 200", rr.Code)
	}
	f.sessions.revoked["s1"] = true
	if rr := doRequest(t, h, withToken); rr.Code != http.StatusUnauthorized {
		t.Fatalf("after revoke: status = %d, want 401 with the same token", rr.Code)
	}
}

func TestGate_OptionalContinuesAnonymously(t *testing.T) {
	f := newGateFixture(t)
	var got principal.Principal
	rr := doRequest(t, f.gate.Optional(echoPrincipal(&got)), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.UserID != "" {
		t.Errorf("principal should be absent, got %+v", got)
	}
}

func TestGate_OptionalAttachesWhenPossible(t *testing.T) {
	f := newGateFixture(t)
	token, _, _ := f.tokens.Mint("s1", "u1", "alice@example.com", "")

	var got principal.Principal
	rr := doRequest(t, f.gate.Optional(echoPrincipal(&got)), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got.UserID != "u1" {
		t.Errorf("principal = %+v", got)
	}
}
