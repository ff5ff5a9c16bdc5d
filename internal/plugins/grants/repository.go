package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/grantdesk/grantdesk/internal/apperror"
)

// ApplicationRepository defines data access for grant applications.
type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	FindByID(ctx context.Context, id string) (*Application, error)
	ListByMinistry(ctx context.Context, ministryID string) ([]Application, error)
	ListByApplicant(ctx context.Context, applicantID string) ([]Application, error)
	Update(ctx context.Context, app *Application) error
}

type applicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository creates a MariaDB-backed application repository.
func NewApplicationRepository(db *sql.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

const applicationColumns = `id, ministry_id, applicant_id, title, summary_html,
	amount_cents, status, decided_by, decided_at, decision_note, created_at, updated_at`

func (r *applicationRepository) Create(ctx context.Context, app *Application) error {
	query := `
		INSERT INTO grant_applications
			(id, ministry_id, applicant_id, title, summary_html, amount_cents, status, decision_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		app.ID, app.MinistryID, app.ApplicantID, app.Title, app.SummaryHTML,
		app.AmountCents, app.Status, app.DecisionNote)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("failed to create grant application: %w", err))
	}
	return nil
}

func (r *applicationRepository) FindByID(ctx context.Context, id string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM grant_applications WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("grant application not found")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("failed to find grant application: %w", err))
	}
	return app, nil
}

func (r *applicationRepository) ListByMinistry(ctx context.Context, ministryID string) ([]Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM grant_applications WHERE ministry_id = ? ORDER BY created_at DESC`
	return r.list(ctx, query, ministryID)
}

func (r *applicationRepository) ListByApplicant(ctx context.Context, applicantID string) ([]Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM grant_applications WHERE applicant_id = ? ORDER BY created_at DESC`
	return r.list(ctx, query, applicantID)
}

func (r *applicationRepository) list(ctx context.Context, query string, arg any) ([]Application, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("failed to list grant applications: %w", err))
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("failed to scan grant application: %w", err))
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("failed to iterate grant applications: %w", err))
	}
	return apps, nil
}

func (r *applicationRepository) Update(ctx context.Context, app *Application) error {
	query := `
		UPDATE grant_applications
		SET title = ?, summary_html = ?, amount_cents = ?, status = ?,
			decided_by = ?, decided_at = ?, decision_note = ?, updated_at = NOW()
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		app.Title, app.SummaryHTML, app.AmountCents, app.Status,
		app.DecidedBy, app.DecidedAt, app.DecisionNote, app.ID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("failed to update grant application: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*Application, error) {
	var app Application
	err := row.Scan(
		&app.ID, &app.MinistryID, &app.ApplicantID, &app.Title, &app.SummaryHTML,
		&app.AmountCents, &app.Status, &app.DecidedBy, &app.DecidedAt,
		&app.DecisionNote, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}
