package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padraicbc/kmtapi/models"
)

var raceTransitions = map[models.RaceStatus][]models.RaceStatus{
	models.RaceScheduled:  {models.RaceInProgress, models.RaceCancelled, models.RacePostponed},
	models.RaceInProgress: {models.RaceCompleted},
	models.RacePostponed:  {models.RaceScheduled, models.RaceCancelled},
}

// RaceSpec describes a race to create or the new values of an edited race.
// Either RequiredMarshals or Requirements states the headcount; a flat count
// becomes a single general requirement.
type RaceSpec struct {
	Title            string
	Type             string
	Track            string
	StartDate        time.Time
	EndDate          time.Time
	RequiredMarshals int
	Requirements     []models.MarshalRequirement
}

func (spec RaceSpec) requirements() ([]models.MarshalRequirement, error) {
	if len(spec.Requirements) == 0 {
		if spec.RequiredMarshals <= 0 {
			return nil, newError(KindInvalidArgument, "required marshals must be positive")
		}
		return []models.MarshalRequirement{{Type: models.GeneralMarshalType, Count: spec.RequiredMarshals}}, nil
	}

	out := make([]models.MarshalRequirement, 0, len(spec.Requirements))
	seen := make(map[string]bool, len(spec.Requirements))
	for _, req := range spec.Requirements {
		req.Type = strings.TrimSpace(req.Type)
		if req.Type == "" {
			return nil, newError(KindInvalidArgument, "requirement type is required")
		}
		if req.Count <= 0 {
			return nil, newError(KindInvalidArgument, "requirement %q needs a positive count", req.Type)
		}
		if seen[req.Type] {
			return nil, newError(KindInvalidArgument, "requirement %q listed twice", req.Type)
		}
		seen[req.Type] = true
		out = append(out, req)
	}
	return out, nil
}

func (spec RaceSpec) validate() error {
	if strings.TrimSpace(spec.Title) == "" {
		return newError(KindInvalidArgument, "title is required")
	}
	if spec.StartDate.IsZero() || spec.EndDate.IsZero() {
		return newError(KindInvalidArgument, "start and end dates are required")
	}
	if !spec.EndDate.After(spec.StartDate) {
		return newError(KindInvalidArgument, "end date must be after start date")
	}
	return nil
}

// RaceResult is a created race plus the outcome of announcing it. Warning is
// set when some marshals could not be notified; the race exists regardless.
type RaceResult struct {
	Race     *models.Race
	Notified int
	Warning  string
}

// CreateRace validates spec, allocates the race identifier, persists the race
// and then announces it to all active marshals.
func (s *Service) CreateRace(ctx context.Context, caller Caller, spec RaceSpec) (*RaceResult, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	reqs, err := spec.requirements()
	if err != nil {
		return nil, err
	}

	now := s.now()
	raceID, err := s.ids.NextRaceID(ctx, now)
	if err != nil {
		return nil, err
	}

	race := &models.Race{
		ID:           uuid.New(),
		RaceID:       raceID,
		Title:        strings.TrimSpace(spec.Title),
		Type:         strings.TrimSpace(spec.Type),
		Track:        strings.TrimSpace(spec.Track),
		StartDate:    spec.StartDate,
		EndDate:      spec.EndDate,
		Requirements: reqs,
		Status:       models.RaceScheduled,
		CreatedBy:    caller.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateRace(ctx, race); err != nil {
		return nil, storeErr("create race", err)
	}
	s.log.Info("race created", zap.String("race_id", race.RaceID), zap.String("manager", caller.ID.String()))

	report := s.dispatcher.AnnounceRace(ctx, race, now)
	res := &RaceResult{Race: race, Notified: report.Delivered}
	if report.Err != nil {
		res.Warning = "race created but notifications were not fully delivered: " + report.Err.Error()
	}
	return res, nil
}

// GetRace returns a race with its direct assignments.
func (s *Service) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	race, err := s.store.GetRace(ctx, id)
	if err != nil {
		return nil, notFound("race", err)
	}
	return race, nil
}

// ListRaces returns races ordered by start date.
func (s *Service) ListRaces(ctx context.Context, f RaceFilter) ([]models.Race, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, newError(KindInvalidArgument, "unknown race status %q", f.Status)
	}
	races, err := s.store.ListRaces(ctx, f)
	if err != nil {
		return nil, storeErr("list races", err)
	}
	return races, nil
}

// UpdateRace replaces the editable fields of a race. Only its creator may
// edit it.
func (s *Service) UpdateRace(ctx context.Context, caller Caller, id uuid.UUID, spec RaceSpec) (*models.Race, error) {
	race, err := s.store.GetRace(ctx, id)
	if err != nil {
		return nil, notFound("race", err)
	}
	if race.CreatedBy != caller.ID {
		return nil, newError(KindForbidden, "only the race creator can edit it")
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	reqs, err := spec.requirements()
	if err != nil {
		return nil, err
	}

	race.Title = strings.TrimSpace(spec.Title)
	race.Type = strings.TrimSpace(spec.Type)
	race.Track = strings.TrimSpace(spec.Track)
	race.StartDate = spec.StartDate
	race.EndDate = spec.EndDate
	race.Requirements = reqs
	race.UpdatedAt = s.now()
	if err := s.store.UpdateRace(ctx, race); err != nil {
		return nil, notFound("race", err)
	}
	return race, nil
}

// SetRaceStatus moves a race along its lifecycle.
func (s *Service) SetRaceStatus(ctx context.Context, caller Caller, id uuid.UUID, status models.RaceStatus) (*models.Race, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, newError(KindInvalidArgument, "unknown race status %q", status)
	}
	race, err := s.store.GetRace(ctx, id)
	if err != nil {
		return nil, notFound("race", err)
	}
	if !slices.Contains(raceTransitions[race.Status], status) {
		return nil, newError(KindInvalidState, "race is %s and cannot become %s", race.Status, status)
	}

	now := s.now()
	if err := s.store.SetRaceStatus(ctx, id, race.Status, status, now); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, newError(KindInvalidState, "race is no longer %s", race.Status)
		}
		return nil, notFound("race", err)
	}
	race.Status = status
	race.UpdatedAt = now
	s.log.Info("race status changed", zap.String("race_id", race.RaceID), zap.String("status", string(status)))
	return race, nil
}

// DeleteRace removes a race that never attracted applications. Races in
// progress cannot be deleted.
func (s *Service) DeleteRace(ctx context.Context, caller Caller, id uuid.UUID) error {
	if err := requireManager(caller); err != nil {
		return err
	}
	race, err := s.store.GetRace(ctx, id)
	if err != nil {
		return notFound("race", err)
	}
	if race.CreatedBy != caller.ID {
		return newError(KindForbidden, "only the race creator can delete it")
	}
	if race.Status == models.RaceInProgress {
		return newError(KindInvalidState, "race is in progress")
	}
	n, err := s.store.CountApplications(ctx, id)
	if err != nil {
		return storeErr("count applications", err)
	}
	if n > 0 {
		return newError(KindConflict, "race has %d applications, cancel it instead", n)
	}
	if err := s.store.DeleteRace(ctx, id); err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			return newError(KindInvalidState, "race is in progress")
		case errors.Is(err, ErrConflict):
			return newError(KindConflict, "race has applications, cancel it instead")
		}
		return notFound("race", err)
	}
	s.log.Info("race deleted", zap.String("race_id", race.RaceID))
	return nil
}

// AssignMarshal places a marshal on a race directly, bypassing applications.
func (s *Service) AssignMarshal(ctx context.Context, caller Caller, raceID, marshalID uuid.UUID, position string) (*models.Assignment, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	race, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return nil, notFound("race", err)
	}
	if race.Status == models.RaceCompleted || race.Status == models.RaceCancelled {
		return nil, newError(KindInvalidState, "race is %s", race.Status)
	}
	marshal, err := s.store.GetUser(ctx, marshalID)
	if err != nil {
		return nil, notFound("marshal", err)
	}
	if !marshal.Active() {
		return nil, newError(KindInvalidState, "user is not an active marshal")
	}

	a := &models.Assignment{
		RaceID:     race.ID,
		MarshalID:  marshal.ID,
		Position:   strings.TrimSpace(position),
		AssignedBy: caller.ID,
		AssignedAt: s.now(),
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(KindConflict, "marshal already assigned to this race")
		}
		return nil, storeErr("assign marshal", err)
	}
	return a, nil
}
