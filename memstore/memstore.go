// Package memstore is an in-memory implementation of the core storage ports.
// A single mutex serializes every operation, which gives it the same
// atomicity as the Postgres store: sequence increments, the (marshal, race)
// uniqueness rule and capacity-checked approvals cannot interleave.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

type appKey struct {
	marshal uuid.UUID
	race    uuid.UUID
}

type assignKey struct {
	race    uuid.UUID
	marshal uuid.UUID
}

// Store holds all records in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	counters     map[string]int64
	users        map[uuid.UUID]models.User
	emails       map[string]uuid.UUID
	marshalIDs   map[string]uuid.UUID
	races        map[uuid.UUID]models.Race
	raceIDs      map[string]uuid.UUID
	assignments  map[assignKey]models.Assignment
	applications map[uuid.UUID]models.Application
	pairs        map[appKey]uuid.UUID
	inboxes      map[uuid.UUID][]models.Notification
	nextNotifyID int64
	nextAssignID int64
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		counters:     make(map[string]int64),
		users:        make(map[uuid.UUID]models.User),
		emails:       make(map[string]uuid.UUID),
		marshalIDs:   make(map[string]uuid.UUID),
		races:        make(map[uuid.UUID]models.Race),
		raceIDs:      make(map[string]uuid.UUID),
		assignments:  make(map[assignKey]models.Assignment),
		applications: make(map[uuid.UUID]models.Application),
		pairs:        make(map[appKey]uuid.UUID),
		inboxes:      make(map[uuid.UUID][]models.Notification),
	}
}

func (s *Store) Next(ctx context.Context, key string, base int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.counters[key]
	if !ok {
		v = base
	}
	v++
	s.counters[key] = v
	return v, nil
}

// SetCounter forces a counter to v if v is higher than its current value.
func (s *Store) SetCounter(key string, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.counters[key]; !ok || cur < v {
		s.counters[key] = v
	}
}

// --- users ---

func cloneUser(u models.User) *models.User {
	u.Profile.Specializations = slices.Clone(u.Profile.Specializations)
	return &u
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[u.Email]; ok {
		return core.ErrConflict
	}
	if u.MarshalID != nil {
		if _, ok := s.marshalIDs[*u.MarshalID]; ok {
			return &core.Error{Kind: core.KindConflict, Err: core.ErrMarshalIDTaken}
		}
		s.marshalIDs[*u.MarshalID] = u.ID
	}
	s.emails[u.Email] = u.ID
	s.users[u.ID] = *cloneUser(*u)
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, p models.Profile, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.Profile = p
	u.Profile.Specializations = slices.Clone(p.Specializations)
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id uuid.UUID, st models.AccountStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.Status = st
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

// --- notifications ---

func (s *Store) ListActiveMarshalIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, u := range s.users {
		if u.Active() {
			ids = append(ids, u.ID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids, nil
}

func (s *Store) AppendNotifications(ctx context.Context, userIDs []uuid.UUID, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		if _, ok := s.users[id]; !ok {
			return core.ErrNotFound
		}
	}
	for _, id := range userIDs {
		s.nextNotifyID++
		entry := n
		entry.ID = s.nextNotifyID
		entry.UserID = id
		s.inboxes[id] = append(s.inboxes[id], entry)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.inboxes[userID]), nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox := s.inboxes[userID]
	for i := range inbox {
		if inbox[i].ID == id {
			inbox[i].Read = true
			return nil
		}
	}
	return core.ErrNotFound
}

// --- races ---

func (s *Store) cloneRace(r models.Race) *models.Race {
	r.Requirements = slices.Clone(r.Requirements)
	r.Assignments = nil
	for k, a := range s.assignments {
		if k.race == r.ID {
			r.Assignments = append(r.Assignments, a)
		}
	}
	sort.Slice(r.Assignments, func(i, j int) bool { return r.Assignments[i].ID < r.Assignments[j].ID })
	return &r
}

func (s *Store) CreateRace(ctx context.Context, r *models.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raceIDs[r.RaceID]; ok {
		return core.ErrConflict
	}
	stored := *r
	stored.Requirements = slices.Clone(r.Requirements)
	stored.Assignments = nil
	s.races[r.ID] = stored
	s.raceIDs[r.RaceID] = r.ID
	return nil
}

func (s *Store) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.races[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return s.cloneRace(r), nil
}

func (s *Store) ListRaces(ctx context.Context, f core.RaceFilter) ([]models.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Race{}
	for _, r := range s.races {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.After.IsZero() && !r.StartDate.After(f.After) {
			continue
		}
		out = append(out, *s.cloneRace(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].RaceID < out[j].RaceID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

func (s *Store) UpdateRace(ctx context.Context, r *models.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.races[r.ID]
	if !ok {
		return core.ErrNotFound
	}
	cur.Title = r.Title
	cur.Type = r.Type
	cur.Track = r.Track
	cur.StartDate = r.StartDate
	cur.EndDate = r.EndDate
	cur.Requirements = slices.Clone(r.Requirements)
	cur.UpdatedAt = r.UpdatedAt
	s.races[r.ID] = cur
	r.Status = cur.Status
	return nil
}

func (s *Store) SetRaceStatus(ctx context.Context, id uuid.UUID, from, to models.RaceStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.races[id]
	if !ok {
		return core.ErrNotFound
	}
	if cur.Status != from {
		return core.ErrInvalidState
	}
	cur.Status = to
	cur.UpdatedAt = at
	s.races[id] = cur
	return nil
}

func (s *Store) DeleteRace(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.races[id]
	if !ok {
		return core.ErrNotFound
	}
	if r.Status == models.RaceInProgress {
		return core.ErrInvalidState
	}
	for k := range s.pairs {
		if k.race == id {
			return core.ErrConflict
		}
	}
	for k := range s.assignments {
		if k.race == id {
			delete(s.assignments, k)
		}
	}
	delete(s.raceIDs, r.RaceID)
	delete(s.races, id)
	return nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := assignKey{race: a.RaceID, marshal: a.MarshalID}
	if _, ok := s.assignments[k]; ok {
		return core.ErrConflict
	}
	s.nextAssignID++
	a.ID = s.nextAssignID
	s.assignments[k] = *a
	return nil
}

// --- applications ---

func (s *Store) InsertApplication(ctx context.Context, a *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := appKey{marshal: a.MarshalID, race: a.RaceID}
	if _, ok := s.pairs[k]; ok {
		return core.ErrConflict
	}
	if _, ok := s.races[a.RaceID]; !ok {
		return core.ErrNotFound
	}
	s.pairs[k] = a.ID
	s.applications[a.ID] = *a
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListApplications(ctx context.Context, f core.ApplicationFilter) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Application{}
	for _, a := range s.applications {
		if f.RaceID != uuid.Nil && a.RaceID != f.RaceID {
			continue
		}
		if f.MarshalID != uuid.Nil && a.MarshalID != f.MarshalID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].AppliedAt.After(out[j].AppliedAt)
	})
	return out, nil
}

func (s *Store) CountApplications(ctx context.Context, raceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.pairs {
		if k.race == raceID {
			n++
		}
	}
	return n, nil
}

func (s *Store) TransitionApplication(ctx context.Context, a *models.Application, from models.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeApplication(a, from)
}

func (s *Store) ApproveApplication(ctx context.Context, a *models.Application, from models.ApplicationStatus, check core.ApprovalCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	race, ok := s.races[a.RaceID]
	if !ok {
		return core.ErrNotFound
	}
	approved := 0
	for _, other := range s.applications {
		if other.RaceID == a.RaceID && other.Status == models.ApplicationApproved {
			approved++
		}
	}
	if err := check(s.cloneRace(race), approved); err != nil {
		return err
	}
	return s.writeApplication(a, from)
}

func (s *Store) writeApplication(a *models.Application, from models.ApplicationStatus) error {
	cur, ok := s.applications[a.ID]
	if !ok {
		return core.ErrNotFound
	}
	if cur.Status != from {
		return core.ErrInvalidState
	}
	cur.Status = a.Status
	cur.RespondedAt = a.RespondedAt
	cur.RespondedBy = a.RespondedBy
	cur.ManagerNotes = a.ManagerNotes
	cur.AssignedPosition = a.AssignedPosition
	cur.Performance = a.Performance
	s.applications[a.ID] = cur
	return nil
}
