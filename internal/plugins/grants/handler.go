package grants

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/auth"
)

// Handler holds dependencies for grant application HTTP handlers.
type Handler struct {
	service GrantService
}

// NewHandler creates a grant application handler.
func NewHandler(service GrantService) *Handler {
	return &Handler{service: service}
}

// Create handles POST /grants.
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	sub := auth.GetSubject(c)
	app, err := h.service.Create(c.Request().Context(), sub, &CreateInput{
		MinistryID:  sub.MinistryID,
		ApplicantID: sub.UserID,
		Title:       req.Title,
		SummaryHTML: req.SummaryHTML,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"application": app})
}

// List handles GET /grants.
func (h *Handler) List(c echo.Context) error {
	apps, err := h.service.List(c.Request().Context(), auth.GetSubject(c))
	if err != nil {
		return err
	}
	if apps == nil {
		apps = []Application{}
	}
	return c.JSON(http.StatusOK, map[string]any{"applications": apps})
}

// Get handles GET /grants/:id.
func (h *Handler) Get(c echo.Context) error {
	app, err := h.service.Get(c.Request().Context(), auth.GetSubject(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"application": app})
}

// Submit handles POST /grants/:id/submit.
func (h *Handler) Submit(c echo.Context) error {
	app, err := h.service.Submit(c.Request().Context(), auth.GetSubject(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"application": app})
}

// Decide handles POST /grants/:id/decision.
func (h *Handler) Decide(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	app, err := h.service.Decide(c.Request().Context(), auth.GetSubject(c), c.Param("id"), &DecisionInput{
		ReviewerID: auth.GetUserID(c),
		Approve:    req.Approve,
		Note:       req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"application": app})
}
