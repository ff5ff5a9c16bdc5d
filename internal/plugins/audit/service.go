package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantdesk/grantdesk/internal/apperror"
)

// perPage is the number of events shown per page in the audit feed.
const perPage = 50

// maxUserHistoryEvents caps the number of events returned for a single
// account to prevent unbounded result sets.
const maxUserHistoryEvents = 100

// Service handles business logic for the security event log. It validates
// inputs, enforces limits, and delegates persistence to the repository.
type Service interface {
	// Record persists a security event. Fire-and-forget: persistence
	// failures are logged and swallowed so the triggering operation (a
	// login, a password change) is never blocked by the audit trail.
	Record(ctx context.Context, eventType, userID, ip, userAgent string, details map[string]any)

	// List returns a paginated feed of events matching the filter along
	// with the total match count.
	List(ctx context.Context, filter ListFilter) ([]Event, int, error)

	// ListForUser returns the recent event history for one account.
	ListForUser(ctx context.Context, userID string) ([]Event, error)
}

// service implements Service.
type service struct {
	repo EventRepository
}

// NewService creates a new audit service with the given repository.
func NewService(repo EventRepository) Service {
	return &service{repo: repo}
}

// Record persists a security event. Events without a type are dropped.
func (s *service) Record(ctx context.Context, eventType, userID, ip, userAgent string, details map[string]any) {
	if eventType == "" {
		slog.Warn("dropping audit event with empty type", slog.String("user_id", userID))
		return
	}

	event := &Event{
		EventType: eventType,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		slog.Error("failed to write audit event",
			slog.String("event_type", eventType),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

// List returns the paginated audit feed. Pages are 1-indexed; invalid page
// numbers are clamped to 1.
func (s *service) List(ctx context.Context, filter ListFilter) ([]Event, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	events, total, err := s.repo.List(ctx, filter, perPage, offset)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing audit events: %w", err))
	}

	return events, total, nil
}

// ListForUser returns the recent event history for a single account,
// limited to maxUserHistoryEvents.
func (s *service) ListForUser(ctx context.Context, userID string) ([]Event, error) {
	if userID == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}

	events, err := s.repo.ListForUser(ctx, userID, maxUserHistoryEvents)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing user audit events: %w", err))
	}

	return events, nil
}
