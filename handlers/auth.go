package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/kmtapi/core"
	mw "github.com/padraicbc/kmtapi/middleware"
	"github.com/padraicbc/kmtapi/models"
)

const tokenTTL = 30 * 24 * time.Hour

type credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name     string         `json:"name" validate:"required"`
	Email    string         `json:"email" validate:"required,email"`
	Phone    string         `json:"phone"`
	Password string         `json:"password" validate:"required,min=8"`
	Profile  models.Profile `json:"profile"`
}

type profileRequest struct {
	Specializations []string `json:"specializations"`
	ExperienceLevel string   `json:"experienceLevel" validate:"omitempty,oneof=beginner intermediate experienced expert"`
	WorkStatus      string   `json:"workStatus" validate:"omitempty,oneof=available unavailable busy"`
}

// Signin validates credentials and returns a JWT token valid for 30 days.
func (h *Handler) Signin(c echo.Context) error {
	var creds credentials
	if err := bind(c, &creds); err != nil {
		return err
	}

	user, err := h.svc.Authenticate(c.Request().Context(), creds.Email, creds.Password)
	if err != nil {
		if core.KindOf(err) == core.KindForbidden {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return httpError(err)
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{"token": tokenString, "user": user})
}

func (h *Handler) issueToken(user *models.User) (string, error) {
	claims := &mw.Claims{
		UserID: user.ID.String(),
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}
	if user.MarshalID != nil {
		claims.MarshalID = *user.MarshalID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTKey)
}

// Register creates a pending marshal account.
func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.svc.RegisterMarshal(c.Request().Context(), core.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Profile:  req.Profile,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, user)
}

// Me returns the signed-in account.
func (h *Handler) Me(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	user, err := h.svc.Me(c.Request().Context(), cl)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile replaces the signed-in account's profile.
func (h *Handler) UpdateProfile(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.svc.UpdateProfile(c.Request().Context(), cl, models.Profile{
		Specializations: req.Specializations,
		ExperienceLevel: req.ExperienceLevel,
		WorkStatus:      req.WorkStatus,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// Inbox lists the signed-in account's notifications, oldest first.
func (h *Handler) Inbox(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	ns, err := h.svc.Inbox(c.Request().Context(), cl)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ns)
}

// MarkNotificationRead flags one notification as read.
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	cl, err := caller(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.MarkNotificationRead(c.Request().Context(), cl, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
