package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

// CallerKey is the echo context key holding the authenticated core.Caller.
const CallerKey = "caller"

// Claims extends jwt.RegisteredClaims with application-specific fields.
type Claims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	MarshalID string `json:"marshal_id,omitempty"`
	jwt.RegisteredClaims
}

// JWT returns an Echo middleware that validates the Authorization header token
// using the provided signing key.
func JWT(key []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := strings.TrimSpace(c.Request().Header.Get("Authorization"))
			token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			claims := &Claims{}
			tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				if errors.Is(err, jwt.ErrSignatureInvalid) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token signature")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			if !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id, err := uuid.Parse(claims.UserID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}
			role := models.Role(claims.Role)
			if role != models.RoleMarshal && role != models.RoleManager {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token role")
			}

			c.Set(CallerKey, core.Caller{ID: id, Role: role})
			return next(c)
		}
	}
}

// CallerFrom returns the caller stored by JWT.
func CallerFrom(c echo.Context) (core.Caller, bool) {
	caller, ok := c.Get(CallerKey).(core.Caller)
	return caller, ok
}
