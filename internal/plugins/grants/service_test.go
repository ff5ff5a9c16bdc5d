package grants

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
)

// --- Mock Repository ---

// mockAppRepo implements ApplicationRepository for testing.
type mockAppRepo struct {
	createFn          func(ctx context.Context, app *Application) error
	findByIDFn        func(ctx context.Context, id string) (*Application, error)
	listByMinistryFn  func(ctx context.Context, ministryID string) ([]Application, error)
	listByApplicantFn func(ctx context.Context, applicantID string) ([]Application, error)
	updateFn          func(ctx context.Context, app *Application) error
}

func (m *mockAppRepo) Create(ctx context.Context, app *Application) error {
	if m.createFn != nil {
		return m.createFn(ctx, app)
	}
	return nil
}

func (m *mockAppRepo) FindByID(ctx context.Context, id string) (*Application, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("grant application not found")
}

func (m *mockAppRepo) ListByMinistry(ctx context.Context, ministryID string) ([]Application, error) {
	if m.listByMinistryFn != nil {
		return m.listByMinistryFn(ctx, ministryID)
	}
	return nil, nil
}

func (m *mockAppRepo) ListByApplicant(ctx context.Context, applicantID string) ([]Application, error) {
	if m.listByApplicantFn != nil {
		return m.listByApplicantFn(ctx, applicantID)
	}
	return nil, nil
}

func (m *mockAppRepo) Update(ctx context.Context, app *Application) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, app)
	}
	return nil
}

// --- Test Helpers ---

func newTestGrantService(repo ApplicationRepository) GrantService {
	return NewGrantService(repo, ability.NewResolver())
}

func applicant(userID, ministryID string) ability.Subject {
	return ability.Subject{UserID: userID, MinistryID: ministryID, Roles: []ability.Role{ability.RoleApplicant}}
}

func reviewer(userID, ministryID string) ability.Subject {
	return ability.Subject{UserID: userID, MinistryID: ministryID, Roles: []ability.Role{ability.RoleReviewer}}
}

func assertCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", code)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Errorf("expected status %d, got %d (message: %s)", code, appErr.Code, appErr.Message)
	}
}

func submittedApp(id, ministry, owner string) *Application {
	return &Application{
		ID:          id,
		MinistryID:  ministry,
		ApplicantID: owner,
		Title:       "Road Safety Programme",
		AmountCents: 500_000_00,
		Status:      StatusSubmitted,
	}
}

// --- Create Tests ---

func TestCreate_SanitizesSummary(t *testing.T) {
	var created *Application
	repo := &mockAppRepo{
		createFn: func(ctx context.Context, app *Application) error {
			created = app
			return nil
		},
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return created, nil
		},
	}

	svc := newTestGrantService(repo)
	app, err := svc.Create(context.Background(), applicant("u1", "m1"), &CreateInput{
		MinistryID:  "m1",
		Title:       "Community Garden <script>alert(1)</script>",
		SummaryHTML: `<p>Funding for seeds</p><script>alert(1)</script><a href="javascript:x()">link</a>`,
		AmountCents: 250_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(app.SummaryHTML, "<script>") {
		t.Errorf("expected script tags stripped, got %q", app.SummaryHTML)
	}
	if strings.Contains(app.SummaryHTML, "javascript:") {
		t.Errorf("expected javascript: URLs stripped, got %q", app.SummaryHTML)
	}
	if !strings.Contains(app.SummaryHTML, "<p>Funding for seeds</p>") {
		t.Errorf("expected benign markup preserved, got %q", app.SummaryHTML)
	}
	if strings.Contains(app.Title, "<") {
		t.Errorf("expected title stripped to plain text, got %q", app.Title)
	}
	if app.Status != StatusDraft {
		t.Errorf("expected new application to be a draft, got %s", app.Status)
	}
	if app.ApplicantID != "u1" {
		t.Errorf("expected applicant to own the application, got %s", app.ApplicantID)
	}
}

func TestCreate_ReviewerForbidden(t *testing.T) {
	svc := newTestGrantService(&mockAppRepo{})
	_, err := svc.Create(context.Background(), reviewer("u1", "m1"), &CreateInput{
		MinistryID:  "m1",
		Title:       "Title",
		AmountCents: 100,
	})
	assertCode(t, err, 403)
}

func TestCreate_RejectsNonPositiveAmount(t *testing.T) {
	svc := newTestGrantService(&mockAppRepo{})
	_, err := svc.Create(context.Background(), applicant("u1", "m1"), &CreateInput{
		MinistryID:  "m1",
		Title:       "Title",
		AmountCents: 0,
	})
	assertCode(t, err, 422)
}

// --- Get Tests ---

func TestGet_HidesOtherMinistries(t *testing.T) {
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return submittedApp(id, "m2", "u9"), nil
		},
	}

	svc := newTestGrantService(repo)
	// A reviewer in m1 asking for an m2 application gets a 404, not a 403:
	// cross-ministry existence is not disclosed.
	_, err := svc.Get(context.Background(), reviewer("u1", "m1"), "app-1")
	assertCode(t, err, 404)
}

func TestGet_ApplicantSeesOwnOnly(t *testing.T) {
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return submittedApp(id, "m1", "u1"), nil
		},
	}

	svc := newTestGrantService(repo)
	if _, err := svc.Get(context.Background(), applicant("u1", "m1"), "app-1"); err != nil {
		t.Errorf("expected owner to read own application, got %v", err)
	}
	_, err := svc.Get(context.Background(), applicant("u2", "m1"), "app-1")
	assertCode(t, err, 404)
}

// --- List Tests ---

func TestList_ReviewerGetsMinistryScope(t *testing.T) {
	var askedMinistry string
	repo := &mockAppRepo{
		listByMinistryFn: func(ctx context.Context, ministryID string) ([]Application, error) {
			askedMinistry = ministryID
			return []Application{*submittedApp("a1", ministryID, "u9")}, nil
		},
	}

	svc := newTestGrantService(repo)
	apps, err := svc.List(context.Background(), reviewer("u1", "m1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if askedMinistry != "m1" {
		t.Errorf("expected ministry query for m1, got %q", askedMinistry)
	}
	if len(apps) != 1 {
		t.Errorf("expected 1 application, got %d", len(apps))
	}
}

func TestList_ApplicantGetsOwnScope(t *testing.T) {
	var askedApplicant string
	repo := &mockAppRepo{
		listByApplicantFn: func(ctx context.Context, applicantID string) ([]Application, error) {
			askedApplicant = applicantID
			return nil, nil
		},
	}

	svc := newTestGrantService(repo)
	if _, err := svc.List(context.Background(), applicant("u1", "m1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if askedApplicant != "u1" {
		t.Errorf("expected applicant query for u1, got %q", askedApplicant)
	}
}

// --- Submit Tests ---

func TestSubmit_DraftOnly(t *testing.T) {
	app := submittedApp("app-1", "m1", "u1")
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return app, nil
		},
	}

	svc := newTestGrantService(repo)
	_, err := svc.Submit(context.Background(), applicant("u1", "m1"), "app-1")
	assertCode(t, err, 409)
}

func TestSubmit_Success(t *testing.T) {
	app := submittedApp("app-1", "m1", "u1")
	app.Status = StatusDraft
	var updated *Application
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return app, nil
		},
		updateFn: func(ctx context.Context, a *Application) error {
			updated = a
			return nil
		},
	}

	svc := newTestGrantService(repo)
	got, err := svc.Submit(context.Background(), applicant("u1", "m1"), "app-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusSubmitted {
		t.Errorf("expected submitted status, got %s", got.Status)
	}
	if updated == nil {
		t.Error("expected repository update")
	}
}

// --- Decide Tests ---

func TestDecide_Approve(t *testing.T) {
	app := submittedApp("app-1", "m1", "u9")
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return app, nil
		},
	}

	svc := newTestGrantService(repo)
	got, err := svc.Decide(context.Background(), reviewer("u1", "m1"), "app-1", &DecisionInput{
		Approve: true,
		Note:    "Meets all criteria.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
	if got.DecidedBy == nil || *got.DecidedBy != "u1" {
		t.Error("expected decided_by to record the reviewer")
	}
	if got.DecidedAt == nil {
		t.Error("expected decided_at to be stamped")
	}
}

func TestDecide_Reject(t *testing.T) {
	app := submittedApp("app-1", "m1", "u9")
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return app, nil
		},
	}

	svc := newTestGrantService(repo)
	got, err := svc.Decide(context.Background(), reviewer("u1", "m1"), "app-1", &DecisionInput{
		Approve: false,
		Note:    "Budget exceeds programme ceiling.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
}

func TestDecide_ApplicantForbidden(t *testing.T) {
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return submittedApp(id, "m1", "u1"), nil
		},
	}

	svc := newTestGrantService(repo)
	_, err := svc.Decide(context.Background(), applicant("u1", "m1"), "app-1", &DecisionInput{Approve: true})
	assertCode(t, err, 403)
}

func TestDecide_OwnSubmissionForbidden(t *testing.T) {
	// The reviewer also authored the application.
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return submittedApp(id, "m1", "u1"), nil
		},
	}

	svc := newTestGrantService(repo)
	_, err := svc.Decide(context.Background(), reviewer("u1", "m1"), "app-1", &DecisionInput{Approve: true})
	assertCode(t, err, 403)
}

func TestDecide_SubmittedOnly(t *testing.T) {
	app := submittedApp("app-1", "m1", "u9")
	app.Status = StatusApproved
	repo := &mockAppRepo{
		findByIDFn: func(ctx context.Context, id string) (*Application, error) {
			return app, nil
		},
	}

	svc := newTestGrantService(repo)
	_, err := svc.Decide(context.Background(), reviewer("u1", "m1"), "app-1", &DecisionInput{Approve: true})
	assertCode(t, err, 409)
}
