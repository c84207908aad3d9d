package domain

import "time"

// Event represents one auth audit event (login, logout, revoke, code issue
// or redemption).
type Event struct {
	ID        string
	UserID    string
	Action    string
	Target    string
	TargetID  string
	IP        string
	CreatedAt time.Time
}
