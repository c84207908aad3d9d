package interaction

import (
	"context"
	"sync"
	"time"
)

// InteractionTTL bounds how long a pending interaction stays resumable.
const InteractionTTL = 15 * time.Minute

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Interaction is one in-flight OIDC interaction: the state carried between
// the authorize request and the hosted login/consent pages.
type Interaction struct {
	ID          string
	Prompt      string
	ClientID    string
	RedirectURI string
	Scope       string
	Nonce       string
	// MissingScopes and MissingClaims are what the request asked for beyond
	// any prior grant; the consent step must cover them.
	MissingScopes []string
	MissingClaims []string
	// AccountID is bound after a successful login submission.
	AccountID string
	// GrantID is set when consent completes the interaction.
	GrantID   string
	Error     string
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the interaction can no longer be resumed at now.
func (i *Interaction) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Store holds pending interactions. Interactions are short-lived and bound to
// one node's login flow, so an in-memory store is sufficient.
type Store interface {
	Put(ctx context.Context, i *Interaction)
	// Get returns a copy of the interaction, or ok false if missing or expired.
	Get(ctx context.Context, id string) (*Interaction, bool)
	Delete(ctx context.Context, id string)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]*Interaction
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory interaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]*Interaction),
		nowF: time.Now,
	}
}

// Put stores a copy of i keyed by its id.
func (s *MemoryStore) Put(_ context.Context, i *Interaction) {
	cp := *i
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[i.ID] = &cp
}

// Get returns a copy of the interaction if present and not expired.
func (s *MemoryStore) Get(_ context.Context, id string) (*Interaction, bool) {
	s.mu.RLock()
	i, ok := s.m[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if i.Expired(s.nowF()) {
		s.mu.Lock()
		delete(s.m, id)
		s.mu.Unlock()
		return nil, false
	}
	cp := *i
	return &cp, true
}

// Delete removes the interaction.
func (s *MemoryStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}
