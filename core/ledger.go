package core

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padraicbc/kmtapi/models"
)

// transitions lists, for each ledger state, the states it may move to.
// Rejected and withdrawn are terminal.
var transitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationPending:  {models.ApplicationApproved, models.ApplicationRejected, models.ApplicationWithdrawn},
	models.ApplicationApproved: {models.ApplicationWithdrawn},
}

// CanTransition reports whether an application may move from one state to
// another.
func CanTransition(from, to models.ApplicationStatus) bool {
	return slices.Contains(transitions[from], to)
}

func checkTransition(from, to models.ApplicationStatus) error {
	if !CanTransition(from, to) {
		return newError(KindInvalidState, "application is %s and cannot become %s", from, to)
	}
	return nil
}

// Decision is a manager's response to a pending application.
type Decision struct {
	Status           models.ApplicationStatus
	Notes            string
	AssignedPosition string
}

// Apply records a marshal's request to work race raceID.
func (s *Service) Apply(ctx context.Context, caller Caller, raceID uuid.UUID, message string) (*models.Application, error) {
	if caller.Role != models.RoleMarshal {
		return nil, newError(KindForbidden, "only marshals can apply")
	}
	marshal, err := s.store.GetUser(ctx, caller.ID)
	if err != nil {
		return nil, notFound("marshal", err)
	}
	if !marshal.Active() {
		return nil, newError(KindForbidden, "marshal account is %s", marshal.Status)
	}

	race, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, notFound("race", err)
	}
	now := s.now()
	if !race.StartDate.After(now) {
		return nil, newError(KindInvalidState, "race already started")
	}
	if race.Status != models.RaceScheduled && race.Status != models.RacePostponed {
		return nil, newError(KindInvalidState, "race is %s", race.Status)
	}

	app := &models.Application{
		ID:        uuid.New(),
		MarshalID: caller.ID,
		RaceID:    race.ID,
		Message:   strings.TrimSpace(message),
		Status:    models.ApplicationPending,
		AppliedAt: now,
	}
	// The unique (marshal, race) constraint is the duplicate check.
	if err := s.store.InsertApplication(ctx, app); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(KindConflict, "already applied to this race")
		}
		return nil, storeErr("insert application", err)
	}

	s.log.Info("application submitted",
		zap.String("application", app.ID.String()),
		zap.String("race_id", race.RaceID),
		zap.String("marshal", caller.ID.String()))
	return app, nil
}

// Respond approves or rejects an application. Approval is refused once the
// race's required headcount is reached.
func (s *Service) Respond(ctx context.Context, caller Caller, appID uuid.UUID, d Decision) (*models.Application, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	if d.Status != models.ApplicationApproved && d.Status != models.ApplicationRejected {
		return nil, newError(KindInvalidArgument, "decision must be approved or rejected")
	}

	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, notFound("application", err)
	}
	from := app.Status
	if err := checkTransition(from, d.Status); err != nil {
		return nil, err
	}

	now := s.now()
	responder := caller.ID
	app.Status = d.Status
	app.RespondedAt = &now
	app.RespondedBy = &responder
	if notes := strings.TrimSpace(d.Notes); notes != "" {
		app.ManagerNotes = notes
	}
	if pos := strings.TrimSpace(d.AssignedPosition); pos != "" {
		app.AssignedPosition = pos
	}

	if d.Status == models.ApplicationApproved {
		err = s.store.ApproveApplication(ctx, app, from, capacityCheck)
	} else {
		err = s.store.TransitionApplication(ctx, app, from)
	}
	if err != nil {
		return nil, ledgerWriteErr(err)
	}

	s.log.Info("application answered",
		zap.String("application", app.ID.String()),
		zap.String("status", string(app.Status)),
		zap.String("manager", caller.ID.String()))
	return app, nil
}

// Withdraw lets the applicant pull a pending or approved application.
func (s *Service) Withdraw(ctx context.Context, caller Caller, appID uuid.UUID) error {
	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		return notFound("application", err)
	}
	if app.MarshalID != caller.ID {
		return newError(KindForbidden, "only the applicant can withdraw")
	}
	from := app.Status
	if err := checkTransition(from, models.ApplicationWithdrawn); err != nil {
		return err
	}

	app.Status = models.ApplicationWithdrawn
	if err := s.store.TransitionApplication(ctx, app, from); err != nil {
		return ledgerWriteErr(err)
	}
	s.log.Info("application withdrawn", zap.String("application", app.ID.String()))
	return nil
}

// Rate records a manager's 1-5 rating of an approved application.
func (s *Service) Rate(ctx context.Context, caller Caller, appID uuid.UUID, rating int, feedback string) error {
	if err := requireManager(caller); err != nil {
		return err
	}
	if rating < 1 || rating > 5 {
		return newError(KindInvalidArgument, "rating must be between 1 and 5")
	}

	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		return notFound("application", err)
	}
	if app.Status != models.ApplicationApproved {
		return newError(KindInvalidState, "only approved applications can be rated, application is %s", app.Status)
	}

	app.Performance = &models.Performance{
		Rating:   rating,
		Feedback: strings.TrimSpace(feedback),
		RatedBy:  caller.ID,
		RatedAt:  s.now(),
	}
	if err := s.store.TransitionApplication(ctx, app, models.ApplicationApproved); err != nil {
		return ledgerWriteErr(err)
	}
	return nil
}

// ListApplications returns applications newest first. Marshals only ever see
// their own.
func (s *Service) ListApplications(ctx context.Context, caller Caller, f ApplicationFilter) ([]models.Application, error) {
	if !caller.isManager() {
		f.MarshalID = caller.ID
	}
	apps, err := s.store.ListApplications(ctx, f)
	if err != nil {
		return nil, storeErr("list applications", err)
	}
	return apps, nil
}

// GetApplication returns one application to its applicant or a manager.
func (s *Service) GetApplication(ctx context.Context, caller Caller, appID uuid.UUID) (*models.Application, error) {
	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, notFound("application", err)
	}
	if !caller.isManager() && app.MarshalID != caller.ID {
		return nil, newError(KindNotFound, "application not found")
	}
	return app, nil
}

// ledgerWriteErr turns a lost conditional write into a readable error.
func ledgerWriteErr(err error) error {
	switch KindOf(err) {
	case KindInvalidState:
		return newError(KindInvalidState, "application changed concurrently, reload and retry")
	case KindNotFound:
		return newError(KindNotFound, "application not found")
	}
	return storeErr("update application", err)
}
