package grants

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
	"github.com/grantdesk/grantdesk/internal/sanitize"
)

// GrantService defines the business logic surface for grant applications.
type GrantService interface {
	Create(ctx context.Context, sub ability.Subject, input *CreateInput) (*Application, error)
	Get(ctx context.Context, sub ability.Subject, id string) (*Application, error)
	List(ctx context.Context, sub ability.Subject) ([]Application, error)
	Submit(ctx context.Context, sub ability.Subject, id string) (*Application, error)
	Decide(ctx context.Context, sub ability.Subject, id string, input *DecisionInput) (*Application, error)
}

type grantService struct {
	repo     ApplicationRepository
	resolver *ability.Resolver
}

// NewGrantService creates a grant application service.
func NewGrantService(repo ApplicationRepository, resolver *ability.Resolver) GrantService {
	return &grantService{repo: repo, resolver: resolver}
}

func (s *grantService) Create(ctx context.Context, sub ability.Subject, input *CreateInput) (*Application, error) {
	res := ability.Resource{Type: ability.ResourceGrant, MinistryID: input.MinistryID, OwnerID: sub.UserID}
	if !s.resolver.Can(sub, ability.ActionCreate, res) {
		return nil, apperror.NewForbidden("you cannot create grant applications")
	}

	title := sanitize.PlainText(input.Title)
	if title == "" {
		return nil, apperror.NewValidation("title is required")
	}
	if input.AmountCents <= 0 {
		return nil, apperror.NewValidation("requested amount must be positive")
	}

	app := &Application{
		ID:          uuid.NewString(),
		MinistryID:  input.MinistryID,
		ApplicantID: sub.UserID,
		Title:       title,
		SummaryHTML: sanitize.HTML(input.SummaryHTML),
		AmountCents: input.AmountCents,
		Status:      StatusDraft,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, app.ID)
}

func (s *grantService) Get(ctx context.Context, sub ability.Subject, id string) (*Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.resolver.Can(sub, ability.ActionRead, s.resource(app)) {
		// Hide existence from subjects outside the ministry.
		return nil, apperror.NewNotFound("grant application not found")
	}
	return app, nil
}

// List returns the applications the subject may read: reviewers and ministry
// admins see their whole ministry, applicants see only their own.
func (s *grantService) List(ctx context.Context, sub ability.Subject) ([]Application, error) {
	ministryRes := ability.Resource{Type: ability.ResourceGrant, MinistryID: sub.MinistryID}
	if s.resolver.Can(sub, ability.ActionRead, ministryRes) {
		return s.repo.ListByMinistry(ctx, sub.MinistryID)
	}
	return s.repo.ListByApplicant(ctx, sub.UserID)
}

func (s *grantService) Submit(ctx context.Context, sub ability.Subject, id string) (*Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.resolver.Can(sub, ability.ActionUpdate, s.resource(app)) {
		return nil, apperror.NewForbidden("you cannot modify this application")
	}
	if app.Status != StatusDraft {
		return nil, apperror.NewConflict("only draft applications can be submitted")
	}

	app.Status = StatusSubmitted
	if err := s.repo.Update(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *grantService) Decide(ctx context.Context, sub ability.Subject, id string, input *DecisionInput) (*Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.resolver.Can(sub, ability.ActionDecide, s.resource(app)) {
		return nil, apperror.NewForbidden("you cannot decide grant applications")
	}
	if app.Status != StatusSubmitted {
		return nil, apperror.NewConflict("only submitted applications can be decided")
	}
	// Reviewers cannot decide their own submissions.
	if app.ApplicantID == sub.UserID {
		return nil, apperror.NewForbidden("you cannot decide your own application")
	}

	if input.Approve {
		app.Status = StatusApproved
	} else {
		app.Status = StatusRejected
	}
	now := time.Now().UTC()
	reviewer := sub.UserID
	app.DecidedBy = &reviewer
	app.DecidedAt = &now
	app.DecisionNote = sanitize.PlainText(strings.TrimSpace(input.Note))

	if err := s.repo.Update(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *grantService) resource(app *Application) ability.Resource {
	return ability.Resource{
		Type:       ability.ResourceGrant,
		MinistryID: app.MinistryID,
		OwnerID:    app.ApplicantID,
	}
}
