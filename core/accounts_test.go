package core_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

func TestRegisterMarshal(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.RegisterMarshal(f.ctx, core.Registration{
		Name:     " Aoife Byrne ",
		Email:    "Aoife@Example.com",
		Password: "password123",
		Profile:  models.Profile{ExperienceLevel: "expert", Specializations: []string{"fence"}},
	})
	require.NoError(t, err)
	second, err := f.svc.RegisterMarshal(f.ctx, core.Registration{
		Name:     "Cian Walsh",
		Email:    "cian@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	require.NotNil(t, first.MarshalID)
	require.NotNil(t, second.MarshalID)
	assert.Equal(t, "KMT-100", *first.MarshalID)
	assert.Equal(t, "KMT-101", *second.MarshalID)

	assert.Equal(t, "Aoife Byrne", first.Name)
	assert.Equal(t, "aoife@example.com", first.Email)
	assert.Equal(t, models.RoleMarshal, first.Role)
	assert.Equal(t, models.AccountPending, first.Status)
	assert.Equal(t, "available", first.Profile.WorkStatus)
	assert.NotEqual(t, "password123", first.Password)
	assert.False(t, first.Active())
}

func TestRegisterMarshal_Validation(t *testing.T) {
	f := newFixture(t)
	valid := core.Registration{Name: "Niamh", Email: "niamh@example.com", Password: "password123"}
	_, err := f.svc.RegisterMarshal(f.ctx, valid)
	require.NoError(t, err)

	tests := []struct {
		name    string
		reg     core.Registration
		wantErr error
	}{
		{"duplicate email", core.Registration{Name: "N", Email: "NIAMH@example.com", Password: "password123"}, core.ErrConflict},
		{"missing name", core.Registration{Email: "a@example.com", Password: "password123"}, core.ErrInvalidArgument},
		{"missing email", core.Registration{Name: "A", Password: "password123"}, core.ErrInvalidArgument},
		{"missing password", core.Registration{Name: "A", Email: "a@example.com"}, core.ErrInvalidArgument},
		{"unknown experience", core.Registration{Name: "A", Email: "a@example.com", Password: "password123",
			Profile: models.Profile{ExperienceLevel: "legendary"}}, core.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterMarshal(f.ctx, tt.reg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateManager(t *testing.T) {
	f := newFixture(t)

	m, err := f.svc.CreateManager(f.ctx, core.Registration{Name: "Clerk", Email: "clerk@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, m.Role)
	assert.Equal(t, models.AccountApproved, m.Status)
	assert.Nil(t, m.MarshalID)

	// Managers do not consume marshal numbers.
	u, _ := f.registerMarshal(models.AccountPending)
	assert.Equal(t, "KMT-100", *u.MarshalID)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	u, _ := f.registerMarshal(models.AccountPending)

	got, err := f.svc.Authenticate(f.ctx, "  "+u.Email+"  ", "password123")
	require.NoError(t, err, "pending marshals can sign in")
	assert.Equal(t, u.ID, got.ID)

	_, err = f.svc.Authenticate(f.ctx, u.Email, "wrong")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.Authenticate(f.ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.SetAccountStatus(f.ctx, f.manager, u.ID, models.AccountSuspended)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(f.ctx, u.Email, "password123")
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestSetAccountStatus(t *testing.T) {
	f := newFixture(t)
	u, m := f.registerMarshal(models.AccountPending)

	_, err := f.svc.SetAccountStatus(f.ctx, m, u.ID, models.AccountApproved)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.SetAccountStatus(f.ctx, f.manager, u.ID, "banned")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.SetAccountStatus(f.ctx, f.manager, f.manager.ID, models.AccountSuspended)
	assert.ErrorIs(t, err, core.ErrInvalidArgument, "managers are not moderated")

	got, err := f.svc.SetAccountStatus(f.ctx, f.manager, u.ID, models.AccountApproved)
	require.NoError(t, err)
	assert.True(t, got.Active())

	ids, err := f.store.ListActiveMarshalIDs(f.ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, u.ID)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	m := f.marshal()

	got, err := f.svc.UpdateProfile(f.ctx, m, models.Profile{
		Specializations: []string{"parade_ring", "start"},
		ExperienceLevel: "intermediate",
		WorkStatus:      "busy",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"parade_ring", "start"}, got.Profile.Specializations)
	assert.Equal(t, "busy", got.Profile.WorkStatus)

	_, err = f.svc.UpdateProfile(f.ctx, m, models.Profile{WorkStatus: "asleep"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	me, err := f.svc.Me(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "intermediate", me.Profile.ExperienceLevel)
}

func TestRegisterMarshal_TakenMarshalIDIsNotAnEmailClash(t *testing.T) {
	f := newFixture(t)
	legacy := "KMT-100"
	require.NoError(t, f.store.CreateUser(f.ctx, &models.User{
		ID: uuid.New(), Name: "Imported", Email: "legacy@example.com",
		Role: models.RoleMarshal, Status: models.AccountApproved, MarshalID: &legacy,
	}))
	reg := core.Registration{Name: "New Marshal", Email: "new@example.com", Password: "password123"}

	_, err := f.svc.RegisterMarshal(f.ctx, reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.ErrorIs(t, err, core.ErrMarshalIDTaken)
	assert.NotErrorIs(t, err, core.ErrConflict)
	assert.NotContains(t, err.Error(), "email")

	u, err := f.svc.RegisterMarshal(f.ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "KMT-101", *u.MarshalID)
}
