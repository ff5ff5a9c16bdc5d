package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventRepository defines the data access contract for the security event
// log. All SQL lives in the concrete implementation -- no SQL leaks out.
type EventRepository interface {
	// Insert persists a new event and fills in its assigned ID.
	Insert(ctx context.Context, event *Event) error

	// List returns events matching the filter, most recent first, along with
	// the total match count for pagination.
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]Event, int, error)

	// ListForUser returns the most recent events for a single account.
	ListForUser(ctx context.Context, userID string, limit int) ([]Event, error)
}

// eventRepository implements EventRepository with MariaDB queries.
type eventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new repository backed by the given DB pool.
func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

// Insert persists an event. The details map is serialized to JSON before
// storage; nil details are stored as SQL NULL.
func (r *eventRepository) Insert(ctx context.Context, event *Event) error {
	query := `INSERT INTO audit_events (event_type, user_id, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling event details: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, nullIfEmpty(event.UserID),
		event.IPAddress, event.UserAgent,
		detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit event id: %w", err)
	}
	event.ID = id

	return nil
}

// List returns a filtered, paginated slice of events ordered newest first.
// The WHERE clause is assembled from whichever filter fields are set.
func (r *eventRepository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]Event, int, error) {
	var conds []string
	var args []any
	if filter.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_events" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit events: %w", err)
	}

	query := `SELECT id, event_type, user_id, ip_address, user_agent, details, created_at
	          FROM audit_events` + where + `
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// ListForUser returns the most recent events recorded for one account.
func (r *eventRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	query := `SELECT id, event_type, user_id, ip_address, user_agent, details, created_at
	          FROM audit_events
	          WHERE user_id = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing user audit events: %w", err)
	}
	defer rows.Close()

	return scanEventRows(rows)
}

// scanEventRows scans rows from an audit_events query into Event slices.
// Expects columns: id, event_type, user_id, ip_address, user_agent, details,
// created_at.
func scanEventRows(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var userID sql.NullString
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.EventType, &userID,
			&e.IPAddress, &e.UserAgent,
			&detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		if userID.Valid {
			e.UserID = userID.String
		}

		// Deserialize JSON details if present.
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				// Non-fatal: keep the row visible in the feed.
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit event rows: %w", err)
	}

	return events, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
