// Package audit records auth events (logins, logouts, revocations, code
// redemptions) for later review. Writes are best-effort and never fail the
// request that triggered them.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/audit/domain"
	auditrepo "github.com/devcoda25/myaccounts-bk-sub000/internal/audit/repository"
)

// SentinelUserID is recorded for events with no resolved user (e.g. failed
// logins for unknown identifiers).
const SentinelUserID = "_anonymous"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Logger writes a single audit event with explicit action/target. Best-effort:
// failures are logged and do not affect the caller.
type Logger interface {
	Log(ctx context.Context, userID, action, target, targetID string)
}

// DBLogger implements Logger using the audit repository and an optional IP extractor.
type DBLogger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns a Logger persisting to repo. ipExtractor may be nil; then
// IP is recorded empty.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *DBLogger {
	return &DBLogger{repo: repo, ipExtractor: ipExtractor}
}

// Log writes one audit event. Errors are logged and not returned.
func (l *DBLogger) Log(ctx context.Context, userID, action, target, targetID string) {
	if l.repo == nil {
		return
	}
	if userID == "" {
		userID = SentinelUserID
	}
	ip := ""
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	event := &domain.Event{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		IP:        ip,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, event); err != nil {
		slog.Warn("audit write failed", "action", action, "target", target, "error", err)
	}
}

// Nop is a Logger that discards events; used in tests and when auditing is disabled.
type Nop struct{}

func (Nop) Log(context.Context, string, string, string, string) {}
