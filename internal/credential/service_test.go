package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/credential/domain"
	"github.com/devcoda25/myaccounts-bk-sub000/internal/security"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

type fakeUserRepo struct {
	byEmail map[string]*userdomain.User
	created []*userdomain.User
	err     error
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byEmail[email], nil
}

func (f *fakeUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*userdomain.User, error) {
	return f.GetByEmail(ctx, identifier)
}

func (f *fakeUserRepo) Create(_ context.Context, u *userdomain.User) error {
	if f.byEmail == nil {
		f.byEmail = make(map[string]*userdomain.User)
	}
	f.byEmail[u.Email] = u
	f.created = append(f.created, u)
	return nil
}

type fakeCredRepo struct {
	byProvider map[string]*domain.Credential
	created    []*domain.Credential
}

func credKey(p domain.ProviderType, id string) string { return string(p) + "/" + id }

func (f *fakeCredRepo) GetByProvider(_ context.Context, p domain.ProviderType, id string) (*domain.Credential, error) {
	return f.byProvider[credKey(p, id)], nil
}

func (f *fakeCredRepo) Create(_ context.Context, c *domain.Credential) error {
	if f.byProvider == nil {
		f.byProvider = make(map[string]*domain.Credential)
	}
	f.byProvider[credKey(c.ProviderType, c.ProviderID)] = c
	f.created = append(f.created, c)
	return nil
}

type fakeVerifier struct {
	profile *domain.Profile
	err     error
}

func (f *fakeVerifier) VerifyToken(context.Context, domain.ProviderType, string) (*domain.Profile, error) {
	return f.profile, f.err
}

// Low-cost argon2 params keep the test suite fast.
func testHasher() *security.Hasher { return security.NewHasher(8*1024, 1, 1) }

func activeUser(t *testing.T, email, password string) *userdomain.User {
	t.Helper()
	hash, err := testHasher().Hash([]byte(password))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &userdomain.User{
		ID:           "u1",
		Email:        email,
		PasswordHash: hash,
		Status:       userdomain.UserStatusActive,
	}
}

func TestVerifyPassword_Success(t *testing.T) {
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{
		"alice@example.com": activeUser(t, "alice@example.com", "correct horse"),
	}}
	s := NewService(users, &fakeCredRepo{}, testHasher(), &fakeVerifier{})

	got, err := s.VerifyPassword(context.Background(), "Alice@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if got == nil || got.ID != "u1" {
		t.Fatalf("got %+v, want user u1", got)
	}
}

func TestVerifyPassword_MismatchReturnsNilNil(t *testing.T) {
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{
		"alice@example.com": activeUser(t, "alice@example.com", "correct horse"),
	}}
	s := NewService(users, &fakeCredRepo{}, testHasher(), &fakeVerifier{})

	cases := []struct {
		name                 string
		identifier, password string
	}{
		{"wrong password", "alice@example.com", "wrong"},
		{"unknown user", "bob@example.com", "correct horse"},
		{"empty identifier", "", "correct horse"},
		{"empty password", "alice@example.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.VerifyPassword(context.Background(), tc.identifier, tc.password)
			if err != nil {
				t.Fatalf("VerifyPassword: %v", err)
			}
			if got != nil {
				t.Errorf("got %+v, want nil", got)
			}
		})
	}
}

func TestVerifyPassword_DisabledUser(t *testing.T) {
	u := activeUser(t, "alice@example.com", "correct horse")
	u.Status = userdomain.UserStatusDisabled
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{u.Email: u}}
	s := NewService(users, &fakeCredRepo{}, testHasher(), &fakeVerifier{})

	got, err := s.VerifyPassword(context.Background(), u.Email, "correct horse")
	if err != nil || got != nil {
		t.Fatalf("got (%+v, %v), want (nil, nil)", got, err)
	}
}

func TestVerifyPassword_PasswordlessUser(t *testing.T) {
	u := &userdomain.User{ID: "u1", Email: "social@example.com", Status: userdomain.UserStatusActive}
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{u.Email: u}}
	s := NewService(users, &fakeCredRepo{}, testHasher(), &fakeVerifier{})

	got, err := s.VerifyPassword(context.Background(), u.Email, "anything")
	if err != nil || got != nil {
		t.Fatalf("got (%+v, %v), want (nil, nil)", got, err)
	}
}

func TestVerifyPassword_RepoErrorSurfaces(t *testing.T) {
	users := &fakeUserRepo{err: errors.New("db down")}
	s := NewService(users, &fakeCredRepo{}, testHasher(), &fakeVerifier{})

	if _, err := s.VerifyPassword(context.Background(), "a@example.com", "pw"); err == nil {
		t.Fatal("expected infrastructure error to surface")
	}
}

func TestVerifySocialToken_FailureIsUnauthorized(t *testing.T) {
	s := NewService(&fakeUserRepo{}, &fakeCredRepo{}, testHasher(),
		&fakeVerifier{err: errors.New("bad signature from upstream key 17")})

	_, err := s.VerifySocialToken(context.Background(), domain.ProviderGoogle, "tok")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("kind = %v, want Unauthorized", apperr.KindOf(err))
	}
	// Provider detail stays server-side.
	if got := apperr.PublicMessage(err); got != "invalid social token" {
		t.Errorf("public message = %q", got)
	}
}

func TestLinkOrCreateUser_CreatesVerifiedPasswordlessUser(t *testing.T) {
	users := &fakeUserRepo{}
	creds := &fakeCredRepo{}
	s := NewService(users, creds, testHasher(), &fakeVerifier{})

	profile := &domain.Profile{
		Provider:   domain.ProviderGoogle,
		ProviderID: "g-123",
		Email:      "New@Example.com",
		Name:       "New User",
	}
	got, err := s.LinkOrCreateUser(context.Background(), profile)
	if err != nil {
		t.Fatalf("LinkOrCreateUser: %v", err)
	}
	if got.Email != "new@example.com" {
		t.Errorf("email = %q", got.Email)
	}
	if !got.EmailVerified {
		t.Error("email should be pre-verified")
	}
	if got.PasswordHash != "" {
		t.Error("social user must not get a password hash")
	}
	if len(creds.created) != 1 || creds.created[0].UserID != got.ID {
		t.Fatalf("credential not linked: %+v", creds.created)
	}
}

func TestLinkOrCreateUser_LinksExistingUser(t *testing.T) {
	existing := &userdomain.User{ID: "u1", Email: "alice@example.com", Status: userdomain.UserStatusActive}
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{existing.Email: existing}}
	creds := &fakeCredRepo{}
	s := NewService(users, creds, testHasher(), &fakeVerifier{})

	got, err := s.LinkOrCreateUser(context.Background(), &domain.Profile{
		Provider: domain.ProviderGoogle, ProviderID: "g-1", Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("LinkOrCreateUser: %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("user = %q, want u1", got.ID)
	}
	if len(users.created) != 0 {
		t.Error("no new user should be created")
	}
	if len(creds.created) != 1 {
		t.Fatal("credential should be created")
	}
}

func TestLinkOrCreateUser_Idempotent(t *testing.T) {
	existing := &userdomain.User{ID: "u1", Email: "alice@example.com"}
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{existing.Email: existing}}
	creds := &fakeCredRepo{byProvider: map[string]*domain.Credential{
		credKey(domain.ProviderGoogle, "g-1"): {ID: "c1", UserID: "u1", ProviderType: domain.ProviderGoogle, ProviderID: "g-1", CreatedAt: time.Now()},
	}}
	s := NewService(users, creds, testHasher(), &fakeVerifier{})

	got, err := s.LinkOrCreateUser(context.Background(), &domain.Profile{
		Provider: domain.ProviderGoogle, ProviderID: "g-1", Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("LinkOrCreateUser: %v", err)
	}
	if got.ID != "u1" || len(creds.created) != 0 {
		t.Fatalf("relink must be a no-op, got user %q, created %d", got.ID, len(creds.created))
	}
}

func TestLinkOrCreateUser_ConflictOnForeignCredential(t *testing.T) {
	// Credential g-1 belongs to u2, but the profile's email resolves to u1.
	users := &fakeUserRepo{byEmail: map[string]*userdomain.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	creds := &fakeCredRepo{byProvider: map[string]*domain.Credential{
		credKey(domain.ProviderGoogle, "g-1"): {ID: "c1", UserID: "u2", ProviderType: domain.ProviderGoogle, ProviderID: "g-1"},
	}}
	s := NewService(users, creds, testHasher(), &fakeVerifier{})

	_, err := s.LinkOrCreateUser(context.Background(), &domain.Profile{
		Provider: domain.ProviderGoogle, ProviderID: "g-1", Email: "alice@example.com",
	})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("kind = %v, want Conflict", apperr.KindOf(err))
	}
}

func TestLinkOrCreateUser_RejectsIncompleteProfile(t *testing.T) {
	s := NewService(&fakeUserRepo{}, &fakeCredRepo{}, testHasher(), &fakeVerifier{})
	_, err := s.LinkOrCreateUser(context.Background(), &domain.Profile{Provider: domain.ProviderGoogle})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}
