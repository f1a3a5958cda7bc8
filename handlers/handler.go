package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/kmtapi/core"
	mw "github.com/padraicbc/kmtapi/middleware"
)

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	svc    *core.Service
	JWTKey []byte
}

// New creates a Handler with the given service and JWT signing key.
func New(svc *core.Service, jwtKey []byte) *Handler {
	return &Handler{svc: svc, JWTKey: jwtKey}
}

// RegisterRoutes mounts the public and protected API on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()

	// Public
	e.POST("/api/auth/signin", h.Signin)
	e.POST("/api/auth/register", h.Register)

	// Protected – require valid JWT in Authorization header
	api := e.Group("/api", mw.JWT(h.JWTKey))
	api.GET("/me", h.Me)
	api.PUT("/me/profile", h.UpdateProfile)
	api.GET("/me/notifications", h.Inbox)
	api.POST("/me/notifications/:id/read", h.MarkNotificationRead)

	api.PUT("/marshals/:id/status", h.SetMarshalStatus)

	api.GET("/races", h.ListRaces)
	api.POST("/races", h.CreateRace)
	api.GET("/races/:id", h.GetRace)
	api.PUT("/races/:id", h.UpdateRace)
	api.PUT("/races/:id/status", h.SetRaceStatus)
	api.DELETE("/races/:id", h.DeleteRace)
	api.POST("/races/:id/assignments", h.AssignMarshal)
	api.POST("/races/:id/applications", h.Apply)
	api.GET("/races/:id/applications", h.RaceApplications)

	api.GET("/applications", h.ListApplications)
	api.GET("/applications/:id", h.GetApplication)
	api.PUT("/applications/:id/respond", h.Respond)
	api.POST("/applications/:id/withdraw", h.Withdraw)
	api.POST("/applications/:id/rate", h.Rate)
}

// Validator adapts go-playground/validator to echo.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// bind decodes and validates the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Validate(dst)
}

func caller(c echo.Context) (core.Caller, error) {
	cl, ok := mw.CallerFrom(c)
	if !ok {
		return core.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return cl, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// httpError maps core error kinds to HTTP status codes.
func httpError(err error) error {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	status := http.StatusInternalServerError
	switch ce.Kind {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindConflict, core.KindCapacityExceeded:
		status = http.StatusConflict
	case core.KindInvalidState:
		status = http.StatusUnprocessableEntity
	case core.KindForbidden:
		status = http.StatusForbidden
	case core.KindInvalidArgument:
		status = http.StatusBadRequest
	case core.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(status, ce.Error())
}
