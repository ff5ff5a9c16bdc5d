package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/grantdesk/grantdesk/internal/apperror"
	"github.com/grantdesk/grantdesk/internal/plugins/ability"
	"github.com/grantdesk/grantdesk/internal/plugins/auth"
)

// Handler handles HTTP requests for the security event log. Handlers are
// thin: bind request, call service, render response.
type Handler struct {
	service Service
}

// NewHandler creates a new audit handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// List returns the paginated audit feed (GET /audit). Platform operators
// only: the feed spans every ministry.
func (h *Handler) List(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	filter := ListFilter{
		EventType: c.QueryParam("event_type"),
		UserID:    c.QueryParam("user_id"),
		Page:      page,
	}

	events, total, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if events == nil {
		events = []Event{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"events":   events,
		"total":    total,
		"page":     max(filter.Page, 1),
		"per_page": perPage,
	})
}

// UserHistory returns the recent event history for one account
// (GET /audit/users/:id). Platform operators only.
func (h *Handler) UserHistory(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	events, err := h.service.ListForUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if events == nil {
		events = []Event{}
	}

	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// requireAdmin rejects any caller without the platform operator role.
func requireAdmin(c echo.Context) error {
	sub := auth.GetSubject(c)
	for _, role := range sub.Roles {
		if role == ability.RoleAdmin {
			return nil
		}
	}
	return apperror.NewForbidden("administrator access required")
}
