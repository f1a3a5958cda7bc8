package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/padraicbc/kmtapi/models"
)

// Sequencer atomically increments a named counter and returns the new value.
// A key seen for the first time starts at base, so the first value is base+1.
type Sequencer interface {
	Next(ctx context.Context, key string, base int64) (int64, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, p models.Profile, at time.Time) error
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, s models.AccountStatus, at time.Time) error
}

// NotificationStore owns the per-user inboxes.
type NotificationStore interface {
	ListActiveMarshalIDs(ctx context.Context) ([]uuid.UUID, error)
	// AppendNotifications appends a copy of n to every listed inbox in one
	// write. It either delivers to all of userIDs or to none.
	AppendNotifications(ctx context.Context, userIDs []uuid.UUID, n models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID uuid.UUID, id int64) error
}

// RaceFilter narrows ListRaces. Zero values match everything.
type RaceFilter struct {
	Status models.RaceStatus
	After  time.Time
}

// RaceStore persists races and direct assignments.
type RaceStore interface {
	CreateRace(ctx context.Context, r *models.Race) error
	GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error)
	ListRaces(ctx context.Context, f RaceFilter) ([]models.Race, error)
	// UpdateRace writes the editable fields of r and refreshes r.Status from
	// storage. It never writes the status.
	UpdateRace(ctx context.Context, r *models.Race) error
	// SetRaceStatus moves a race to status to only if it is still in from,
	// otherwise it returns ErrInvalidState.
	SetRaceStatus(ctx context.Context, id uuid.UUID, from, to models.RaceStatus, at time.Time) error
	// DeleteRace refuses a race in progress with ErrInvalidState and a race
	// with applications with ErrConflict, both checked at write time.
	DeleteRace(ctx context.Context, id uuid.UUID) error
	CreateAssignment(ctx context.Context, a *models.Assignment) error
}

// ApplicationFilter narrows ListApplications. Zero values match everything.
type ApplicationFilter struct {
	RaceID    uuid.UUID
	MarshalID uuid.UUID
	Status    models.ApplicationStatus
}

// ApprovalCheck is evaluated by the store while approvals for the race are
// serialized. approved is the current number of approved applications.
type ApprovalCheck func(race *models.Race, approved int) error

// ApplicationStore is the application ledger.
type ApplicationStore interface {
	// InsertApplication must reject a second row for the same (marshal, race)
	// pair with ErrConflict, independent of any prior read.
	InsertApplication(ctx context.Context, a *models.Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]models.Application, error)
	CountApplications(ctx context.Context, raceID uuid.UUID) (int, error)
	// TransitionApplication writes a only if the stored status still equals
	// from, otherwise it returns ErrInvalidState.
	TransitionApplication(ctx context.Context, a *models.Application, from models.ApplicationStatus) error
	// ApproveApplication runs check and the conditional write atomically with
	// respect to other approvals for the same race.
	ApproveApplication(ctx context.Context, a *models.Application, from models.ApplicationStatus, check ApprovalCheck) error
}

// Store is everything the service needs from persistence.
type Store interface {
	Sequencer
	UserStore
	NotificationStore
	RaceStore
	ApplicationStore
}
