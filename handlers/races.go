package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

type requirementRequest struct {
	Type  string `json:"type" validate:"required"`
	Count int    `json:"count" validate:"min=1"`
}

type raceRequest struct {
	Title            string               `json:"title" validate:"required"`
	Type             string               `json:"type"`
	Track            string               `json:"track"`
	StartDate        time.Time            `json:"startDate"`
	EndDate          time.Time            `json:"endDate"`
	RequiredMarshals int                  `json:"requiredMarshals" validate:"min=0"`
	Requirements     []requirementRequest `json:"requirements" validate:"dive"`
}

func (r raceRequest) spec() core.RaceSpec {
	spec := core.RaceSpec{
		Title:            r.Title,
		Type:             r.Type,
		Track:            r.Track,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		RequiredMarshals: r.RequiredMarshals,
	}
	for _, req := range r.Requirements {
		spec.Requirements = append(spec.Requirements, models.MarshalRequirement{Type: req.Type, Count: req.Count})
	}
	return spec
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type assignRequest struct {
	MarshalID uuid.UUID `json:"marshalId" validate:"required"`
	Position  string    `json:"position"`
}

type createRaceResponse struct {
	Race     *models.Race `json:"race"`
	Notified int          `json:"notified"`
	Warning  string       `json:"warning,omitempty"`
}

// ListRaces returns races by start date. ?status= filters by status and
// ?upcoming=true keeps only races that have not started.
func (h *Handler) ListRaces(c echo.Context) error {
	f := core.RaceFilter{Status: models.RaceStatus(c.QueryParam("status"))}
	if c.QueryParam("upcoming") == "true" {
		f.After = time.Now()
	}
	races, err := h.svc.ListRaces(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, races)
}

// CreateRace publishes a race and announces it to active marshals.
func (h *Handler) CreateRace(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	var req raceRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.svc.CreateRace(c.Request().Context(), cl, req.spec())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, createRaceResponse{Race: res.Race, Notified: res.Notified, Warning: res.Warning})
}

// GetRace returns a single race.
func (h *Handler) GetRace(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	race, err := h.svc.GetRace(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, race)
}

// UpdateRace edits a race; only its creator may do so.
func (h *Handler) UpdateRace(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req raceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	race, err := h.svc.UpdateRace(c.Request().Context(), cl, id, req.spec())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, race)
}

// SetRaceStatus moves a race along its lifecycle.
func (h *Handler) SetRaceStatus(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	race, err := h.svc.SetRaceStatus(c.Request().Context(), cl, id, models.RaceStatus(req.Status))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, race)
}

// DeleteRace removes a race without applications.
func (h *Handler) DeleteRace(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRace(c.Request().Context(), cl, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AssignMarshal places a marshal on a race directly.
func (h *Handler) AssignMarshal(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.AssignMarshal(c.Request().Context(), cl, id, req.MarshalID, req.Position)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// SetMarshalStatus moderates a marshal account.
func (h *Handler) SetMarshalStatus(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.SetAccountStatus(c.Request().Context(), cl, id, models.AccountStatus(req.Status))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}
