package core_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/memstore"
	"github.com/padraicbc/kmtapi/models"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memstore.Store
	svc     *core.Service
	now     time.Time
	manager core.Caller
	seq     int
}

// newFixture builds a service over a fresh in-memory store with a fixed
// clock and one manager account.
func newFixture(t *testing.T, opts ...core.Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memstore.New(), now: testNow}
	return f.build(f.store, opts...)
}

func (f *fixture) build(store core.Store, opts ...core.Option) *fixture {
	f.t.Helper()
	base := []core.Option{
		core.WithLogger(zap.NewNop()),
		core.WithClock(func() time.Time { return f.now }),
		core.WithPasswordCost(bcrypt.MinCost),
	}
	f.svc = core.New(store, append(base, opts...)...)

	m, err := f.svc.CreateManager(f.ctx, core.Registration{
		Name:     "Race Control",
		Email:    fmt.Sprintf("control%d@example.com", f.nextSeq()),
		Password: "password123",
	})
	require.NoError(f.t, err)
	f.manager = core.Caller{ID: m.ID, Role: models.RoleManager}
	return f
}

func (f *fixture) nextSeq() int {
	f.seq++
	return f.seq
}

// otherManager creates a second manager account.
func (f *fixture) otherManager() core.Caller {
	f.t.Helper()
	m, err := f.svc.CreateManager(f.ctx, core.Registration{
		Name:     "Steward",
		Email:    fmt.Sprintf("steward%d@example.com", f.nextSeq()),
		Password: "password123",
	})
	require.NoError(f.t, err)
	return core.Caller{ID: m.ID, Role: models.RoleManager}
}

// registerMarshal creates a marshal account left in the given status.
func (f *fixture) registerMarshal(status models.AccountStatus) (*models.User, core.Caller) {
	f.t.Helper()
	u, err := f.svc.RegisterMarshal(f.ctx, core.Registration{
		Name:     "Marshal",
		Email:    fmt.Sprintf("marshal%d@example.com", f.nextSeq()),
		Password: "password123",
	})
	require.NoError(f.t, err)
	if status != models.AccountPending {
		u, err = f.svc.SetAccountStatus(f.ctx, f.manager, u.ID, status)
		require.NoError(f.t, err)
	}
	return u, core.Caller{ID: u.ID, Role: models.RoleMarshal}
}

// marshal creates an approved marshal and returns its caller.
func (f *fixture) marshal() core.Caller {
	f.t.Helper()
	_, c := f.registerMarshal(models.AccountApproved)
	return c
}

func (f *fixture) raceSpec(required int) core.RaceSpec {
	start := f.now.Add(48 * time.Hour)
	return core.RaceSpec{
		Title:            "Spring Handicap",
		Type:             "flat",
		Track:            "Leopardstown",
		StartDate:        start,
		EndDate:          start.Add(4 * time.Hour),
		RequiredMarshals: required,
	}
}

// race creates a scheduled race needing required marshals.
func (f *fixture) race(required int) *models.Race {
	f.t.Helper()
	res, err := f.svc.CreateRace(f.ctx, f.manager, f.raceSpec(required))
	require.NoError(f.t, err)
	return res.Race
}

func (f *fixture) apply(c core.Caller, race *models.Race) *models.Application {
	f.t.Helper()
	app, err := f.svc.Apply(f.ctx, c, race.ID, "happy to help")
	require.NoError(f.t, err)
	return app
}

func (f *fixture) approve(app *models.Application) error {
	_, err := f.svc.Respond(f.ctx, f.manager, app.ID, core.Decision{Status: models.ApplicationApproved})
	return err
}

func (f *fixture) status(app *models.Application) models.ApplicationStatus {
	f.t.Helper()
	got, err := f.store.GetApplication(f.ctx, app.ID)
	require.NoError(f.t, err)
	return got.Status
}
