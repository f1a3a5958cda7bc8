package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

type applyRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

type respondRequest struct {
	Status           string `json:"status" validate:"required,oneof=approved rejected"`
	ManagerNotes     string `json:"managerNotes"`
	AssignedPosition string `json:"assignedPosition"`
}

type rateRequest struct {
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Feedback string `json:"feedback"`
}

// Apply submits the signed-in marshal's application to a race.
func (h *Handler) Apply(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req applyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	app, err := h.svc.Apply(c.Request().Context(), cl, raceID, req.Message)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, app)
}

// ListApplications lists applications, newest first. Accepts raceId,
// marshalId and status query filters.
func (h *Handler) ListApplications(c echo.Context) error {
	var f core.ApplicationFilter
	for param, dst := range map[string]*uuid.UUID{"raceId": &f.RaceID, "marshalId": &f.MarshalID} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
			}
			*dst = id
		}
	}
	f.Status = models.ApplicationStatus(c.QueryParam("status"))
	return h.listApplications(c, f)
}

// RaceApplications lists the applications for one race.
func (h *Handler) RaceApplications(c echo.Context) error {
	raceID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	return h.listApplications(c, core.ApplicationFilter{
		RaceID: raceID,
		Status: models.ApplicationStatus(c.QueryParam("status")),
	})
}

func (h *Handler) listApplications(c echo.Context, f core.ApplicationFilter) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	apps, err := h.svc.ListApplications(c.Request().Context(), cl, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, apps)
}

// GetApplication returns one application.
func (h *Handler) GetApplication(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	app, err := h.svc.GetApplication(c.Request().Context(), cl, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, app)
}

// Respond approves or rejects an application.
func (h *Handler) Respond(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req respondRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	app, err := h.svc.Respond(c.Request().Context(), cl, id, core.Decision{
		Status:           models.ApplicationStatus(req.Status),
		Notes:            req.ManagerNotes,
		AssignedPosition: req.AssignedPosition,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, app)
}

// Withdraw lets the applicant pull their application.
func (h *Handler) Withdraw(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Withdraw(c.Request().Context(), cl, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Rate records a manager's rating of an approved application.
func (h *Handler) Rate(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req rateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.Rate(c.Request().Context(), cl, id, req.Rating, req.Feedback); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
