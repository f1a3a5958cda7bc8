package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/memstore"
	mw "github.com/padraicbc/kmtapi/middleware"
	"github.com/padraicbc/kmtapi/models"
)

var testKey = []byte("test-secret")

type testServer struct {
	t   *testing.T
	e   *echo.Echo
	svc *core.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := core.New(memstore.New(), core.WithPasswordCost(bcrypt.MinCost))
	e := echo.New()
	New(svc, testKey).RegisterRoutes(e)
	return &testServer{t: t, e: e, svc: svc}
}

// do sends body as JSON and decodes a JSON response into out when non-nil.
func (s *testServer) do(method, path, token string, body, out any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (s *testServer) signin(email, password string) string {
	s.t.Helper()
	var resp struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	rec := s.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": email, "password": password}, &resp)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func (s *testServer) managerToken() string {
	s.t.Helper()
	_, err := s.svc.CreateManager(context.Background(), core.Registration{
		Name: "Race Control", Email: "control@example.com", Password: "password123",
	})
	require.NoError(s.t, err)
	return s.signin("control@example.com", "password123")
}

// approvedMarshal registers a marshal over HTTP, approves it and signs in.
func (s *testServer) approvedMarshal(mgrToken, email string) (*models.User, string) {
	s.t.Helper()
	var u models.User
	rec := s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Marshal", "email": email, "password": "password123",
	}, &u)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPut, "/api/marshals/"+u.ID.String()+"/status", mgrToken,
		map[string]string{"status": "approved"}, &u)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return &u, s.signin(email, "password123")
}

func (s *testServer) createRace(token string, required int) createRaceResponse {
	s.t.Helper()
	start := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	var resp createRaceResponse
	rec := s.do(http.MethodPost, "/api/races", token, map[string]any{
		"title":            "Autumn Chase",
		"track":            "Punchestown",
		"startDate":        start,
		"endDate":          start.Add(3 * time.Hour),
		"requiredMarshals": required,
	}, &resp)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return resp
}

func TestRegisterAndSignin(t *testing.T) {
	s := newTestServer(t)

	var u models.User
	rec := s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Aoife", "email": "aoife@example.com", "password": "password123",
		"profile": map[string]any{"experienceLevel": "beginner"},
	}, &u)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, u.MarshalID)
	assert.Equal(t, "KMT-100", *u.MarshalID)
	assert.Equal(t, models.AccountPending, u.Status)
	assert.NotContains(t, rec.Body.String(), "password123")

	rec = s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Aoife", "email": "aoife@example.com", "password": "password123",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Short", "email": "short@example.com", "password": "abc",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	token := s.signin("aoife@example.com", "password123")
	claims := &mw.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) { return testKey, nil })
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.UserID)
	assert.Equal(t, "marshal", claims.Role)
	assert.Equal(t, "KMT-100", claims.MarshalID)

	rec = s.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "aoife@example.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/races", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/races", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &mw.Claims{UserID: "x", Role: "manager"})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = s.do(http.MethodGet, "/api/races", signed, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplicationLifecycle(t *testing.T) {
	s := newTestServer(t)
	mgr := s.managerToken()
	_, m1 := s.approvedMarshal(mgr, "m1@example.com")
	_, m2 := s.approvedMarshal(mgr, "m2@example.com")

	rec := s.do(http.MethodPost, "/api/races", m1, map[string]any{"title": "x"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "marshals cannot create races")

	race := s.createRace(mgr, 1)
	assert.Equal(t, 2, race.Notified)
	assert.Empty(t, race.Warning)
	raceURL := "/api/races/" + race.Race.ID.String()

	var inbox []models.Notification
	rec = s.do(http.MethodGet, "/api/me/notifications", m1, nil, &inbox)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationNewRace, inbox[0].Type)

	var app1, app2 models.Application
	rec = s.do(http.MethodPost, raceURL+"/applications", m1, map[string]string{"message": "keen"}, &app1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, raceURL+"/applications", m1, map[string]string{}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate application")
	rec = s.do(http.MethodPost, raceURL+"/applications", m2, nil, &app2)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var listed []models.Application
	rec = s.do(http.MethodGet, raceURL+"/applications", mgr, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, listed, 2)
	rec = s.do(http.MethodGet, "/api/applications", m2, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, listed, 1)
	assert.Equal(t, app2.ID, listed[0].ID)

	respond := func(app models.Application, token, status string) *httptest.ResponseRecorder {
		return s.do(http.MethodPut, "/api/applications/"+app.ID.String()+"/respond", token,
			map[string]string{"status": status, "assignedPosition": "Fence 1"}, nil)
	}
	assert.Equal(t, http.StatusForbidden, respond(app1, m1, "approved").Code)
	assert.Equal(t, http.StatusBadRequest, respond(app1, mgr, "withdrawn").Code)
	assert.Equal(t, http.StatusOK, respond(app1, mgr, "approved").Code)
	assert.Equal(t, http.StatusConflict, respond(app2, mgr, "approved").Code, "capacity reached")

	rateURL := "/api/applications/" + app1.ID.String() + "/rate"
	rec = s.do(http.MethodPost, rateURL, mgr, map[string]any{"rating": 6}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, rateURL, mgr, map[string]any{"rating": 5, "feedback": "spot on"}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/api/applications/"+app1.ID.String()+"/withdraw", m2, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "not the applicant")
	rec = s.do(http.MethodPost, "/api/applications/"+app1.ID.String()+"/withdraw", m1, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodPost, "/api/applications/"+app1.ID.String()+"/withdraw", m1, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "already withdrawn")

	assert.Equal(t, http.StatusOK, respond(app2, mgr, "approved").Code, "seat freed by withdrawal")

	rec = s.do(http.MethodDelete, raceURL, mgr, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "race has applications")
}

func TestRaceRoutes(t *testing.T) {
	s := newTestServer(t)
	mgr := s.managerToken()
	m, marshalToken := s.approvedMarshal(mgr, "m@example.com")
	race := s.createRace(mgr, 3)
	raceURL := "/api/races/" + race.Race.ID.String()
	assert.Regexp(t, `^KMT-R\d{8}01$`, race.Race.RaceID)

	var got models.Race
	rec := s.do(http.MethodGet, raceURL, marshalToken, nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, race.Race.RaceID, got.RaceID)

	rec = s.do(http.MethodGet, "/api/races/"+"not-a-uuid", marshalToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var list []models.Race
	rec = s.do(http.MethodGet, "/api/races?upcoming=true&status=scheduled", marshalToken, nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 1)

	rec = s.do(http.MethodPost, raceURL+"/assignments", mgr,
		map[string]string{"marshalId": m.ID.String(), "position": "Start"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPut, raceURL+"/status", mgr, map[string]string{"status": "completed"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = s.do(http.MethodPut, raceURL+"/status", mgr, map[string]string{"status": "postponed"}, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RacePostponed, got.Status)

	start := time.Now().Add(96 * time.Hour).UTC()
	rec = s.do(http.MethodPut, raceURL, mgr, map[string]any{
		"title": "Autumn Chase", "startDate": start, "endDate": start.Add(-time.Hour), "requiredMarshals": 3,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "end before start")

	rec = s.do(http.MethodDelete, raceURL, mgr, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, raceURL, mgr, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileAndNotifications(t *testing.T) {
	s := newTestServer(t)
	mgr := s.managerToken()
	_, token := s.approvedMarshal(mgr, "m@example.com")

	var me models.User
	rec := s.do(http.MethodPut, "/api/me/profile", token, map[string]any{
		"specializations": []string{"fence"},
		"experienceLevel": "expert",
		"workStatus":      "available",
	}, &me)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "expert", me.Profile.ExperienceLevel)

	rec = s.do(http.MethodPut, "/api/me/profile", token, map[string]any{"workStatus": "asleep"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.createRace(mgr, 2)
	var inbox []models.Notification
	s.do(http.MethodGet, "/api/me/notifications", token, nil, &inbox)
	require.Len(t, inbox, 1)

	readURL := fmt.Sprintf("/api/me/notifications/%d/read", inbox[0].ID)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, readURL, token, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, readURL, mgr, nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/me/notifications/abc/read", token, nil, nil).Code)

	s.do(http.MethodGet, "/api/me/notifications", token, nil, &inbox)
	assert.True(t, inbox[0].Read)
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrConflict, http.StatusConflict},
		{core.ErrCapacityExceeded, http.StatusConflict},
		{core.ErrInvalidState, http.StatusUnprocessableEntity},
		{core.ErrForbidden, http.StatusForbidden},
		{core.ErrInvalidArgument, http.StatusBadRequest},
		{core.ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.ErrorAs(t, httpError(tt.err), &he)
		assert.Equal(t, tt.code, he.Code, tt.err.Error())
	}
}
