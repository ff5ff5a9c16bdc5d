// Package audit provides a security event log. Authentication milestones
// (logins, failures, lockouts, logouts, password changes) are captured as
// Event rows and persisted to the audit_events table, giving ministry
// administrators visibility into account activity.
//
// Recording is fire-and-forget from the caller's perspective: an audit
// write failure is logged but never blocks the operation that triggered it.
package audit

import "time"

// Event type constants follow the "resource.verb" pattern for consistent
// filtering and display grouping.
const (
	EventLoginSuccess       = "login.success"
	EventLoginFailed        = "login.failed"
	EventAccountLocked      = "account.locked"
	EventLogout             = "logout"
	EventLogoutAll          = "logout.all"
	EventPasswordChanged    = "password.changed"
	EventAccountDeactivated = "account.deactivated"
)

// Event represents a single recorded security event. UserID identifies the
// account the event concerns; IP and user agent come from the request that
// triggered it.
type Event struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListFilter narrows an event listing. Zero values mean "no constraint";
// pages are 1-indexed.
type ListFilter struct {
	EventType string
	UserID    string
	Page      int
}
