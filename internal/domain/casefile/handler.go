package casefile

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/casewell/casewell/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/cases", h.CreateCase)
	api.GET("/cases", h.ListCases)
	api.GET("/cases/:id", h.GetCase)
	api.GET("/cases/participants/:participantId/cases", h.ListByParticipant)
	api.PATCH("/cases/:id/status", h.UpdateStatus)
	api.GET("/cases/by-user/:userId", h.ListByUser)
	api.POST("/cases/:id/progress-notes", h.AddProgressNote)
}

// httpError maps domain errors onto status codes. Unknown errors become an
// opaque 500 so storage details never leak to the client.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrCaseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrClosingNoteRequired):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateCase(c echo.Context) error {
	var in CreateCaseInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.CreateCase(c.Request().Context(), &in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListCases(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCases(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Case{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	found, err := h.svc.GetCase(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *Handler) ListByParticipant(c echo.Context) error {
	participantID, err := pathID(c, "participantId")
	if err != nil {
		return err
	}
	items, err := h.svc.FindAllByParticipant(c.Request().Context(), participantID)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Case{}
	}
	return c.JSON(http.StatusOK, items)
}

type updateStatusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type byUserResponse struct {
	UserID string  `json:"userId"`
	Total  int     `json:"total"`
	Cases  []*Case `json:"cases"`
}

func (h *Handler) ListByUser(c echo.Context) error {
	userID := c.Param("userId")
	items, err := h.svc.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Case{}
	}
	return c.JSON(http.StatusOK, byUserResponse{UserID: userID, Total: len(items), Cases: items})
}

func (h *Handler) AddProgressNote(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in ProgressNoteInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note, err := h.svc.AddProgressNote(c.Request().Context(), id, &in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, note)
}
