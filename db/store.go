package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements core.Store on PostgreSQL.
type Store struct {
	db *bun.DB
}

var _ core.Store = (*Store)(nil)

// NewStore wraps an open bun connection.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// translate maps driver errors onto the core sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case pgUniqueViolation:
			return &core.Error{Kind: core.KindConflict, Msg: "duplicate record", Err: err}
		case pgForeignKeyViolation:
			return &core.Error{Kind: core.KindNotFound, Msg: "referenced record missing", Err: err}
		}
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Next is a single upsert-and-increment statement, so concurrent callers on
// the same key never see the same value.
func (s *Store) Next(ctx context.Context, key string, base int64) (int64, error) {
	var v int64
	err := s.db.NewRaw(`
		INSERT INTO sequence_counters (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = sequence_counters.value + 1
		RETURNING value`,
		key, base+1,
	).Scan(ctx, &v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// AdvanceCounter raises a counter to at least v. It never lowers it.
func (s *Store) AdvanceCounter(ctx context.Context, key string, v int64) error {
	_, err := s.db.NewRaw(`
		INSERT INTO sequence_counters (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = GREATEST(sequence_counters.value, EXCLUDED.value)`,
		key, v,
	).Exec(ctx)
	return err
}

// --- users ---

// CreateUser tells a taken marshal_id apart from a taken email by the name
// of the violated constraint.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.NewInsert().Model(u).Exec(ctx)
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation && strings.Contains(pgErr.Field('n'), "marshal_id") {
		return &core.Error{Kind: core.KindConflict, Msg: "duplicate marshal id", Err: fmt.Errorf("%w: %w", core.ErrMarshalIDTaken, err)}
	}
	return translate(err)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := new(models.User)
	if err := s.db.NewSelect().Model(u).Where("u.id = ?", id).Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := new(models.User)
	if err := s.db.NewSelect().Model(u).Where("u.email = ?", email).Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, p models.Profile, at time.Time) error {
	u := &models.User{ID: id, Profile: p, UpdatedAt: at}
	return affected(s.db.NewUpdate().Model(u).Column("profile", "updated_at").WherePK().Exec(ctx))
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id uuid.UUID, st models.AccountStatus, at time.Time) error {
	u := &models.User{ID: id, Status: st, UpdatedAt: at}
	return affected(s.db.NewUpdate().Model(u).Column("status", "updated_at").WherePK().Exec(ctx))
}

// --- notifications ---

func (s *Store) ListActiveMarshalIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.NewSelect().
		Model((*models.User)(nil)).
		Column("u.id").
		Where("u.role = ?", models.RoleMarshal).
		Where("u.status = ?", models.AccountApproved).
		OrderExpr("u.id ASC").
		Scan(ctx, &ids)
	return ids, translate(err)
}

func (s *Store) AppendNotifications(ctx context.Context, userIDs []uuid.UUID, n models.Notification) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.Notification, len(userIDs))
	for i, id := range userIDs {
		rows[i] = n
		rows[i].ID = 0
		rows[i].UserID = id
	}
	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return translate(err)
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	ns := []models.Notification{}
	err := s.db.NewSelect().Model(&ns).Where("n.user_id = ?", userID).OrderExpr("n.id ASC").Scan(ctx)
	return ns, translate(err)
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID uuid.UUID, id int64) error {
	return affected(s.db.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("read = true").
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx))
}

// --- races ---

func (s *Store) CreateRace(ctx context.Context, r *models.Race) error {
	_, err := s.db.NewInsert().Model(r).Exec(ctx)
	return translate(err)
}

func (s *Store) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	r := new(models.Race)
	err := s.db.NewSelect().Model(r).
		Relation("Assignments", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("ra.id ASC")
		}).
		Where("rc.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (s *Store) ListRaces(ctx context.Context, f core.RaceFilter) ([]models.Race, error) {
	races := []models.Race{}
	q := s.db.NewSelect().Model(&races).
		Relation("Assignments").
		OrderExpr("rc.start_date ASC, rc.race_id ASC")
	if f.Status != "" {
		q = q.Where("rc.status = ?", f.Status)
	}
	if !f.After.IsZero() {
		q = q.Where("rc.start_date > ?", f.After)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return races, nil
}

func (s *Store) UpdateRace(ctx context.Context, r *models.Race) error {
	return affected(s.db.NewUpdate().Model(r).
		Column("title", "type", "track", "start_date", "end_date", "requirements", "updated_at").
		WherePK().
		Returning("status").
		Exec(ctx))
}

// SetRaceStatus is a compare-and-set on the stored status.
func (s *Store) SetRaceStatus(ctx context.Context, id uuid.UUID, from, to models.RaceStatus, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*models.Race)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	return s.raceMiss(ctx, id, res, err)
}

// DeleteRace refuses races in progress in the statement itself and relies on
// the applications foreign key to refuse a race that has ledger entries.
func (s *Store) DeleteRace(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*models.Race)(nil)).
		Where("id = ?", id).
		Where("status <> ?", models.RaceInProgress).
		Exec(ctx)
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == pgForeignKeyViolation {
		return core.ErrConflict
	}
	return s.raceMiss(ctx, id, res, err)
}

// raceMiss tells a conditional race write that matched no row apart: the
// race is either gone or no longer in the state the write expected.
func (s *Store) raceMiss(ctx context.Context, id uuid.UUID, res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().Model((*models.Race)(nil)).Where("rc.id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrNotFound
	}
	return core.ErrInvalidState
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	_, err := s.db.NewInsert().Model(a).Returning("id").Exec(ctx)
	return translate(err)
}

// --- applications ---

func (s *Store) InsertApplication(ctx context.Context, a *models.Application) error {
	_, err := s.db.NewInsert().Model(a).Exec(ctx)
	return translate(err)
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	a := new(models.Application)
	if err := s.db.NewSelect().Model(a).Where("a.id = ?", id).Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (s *Store) ListApplications(ctx context.Context, f core.ApplicationFilter) ([]models.Application, error) {
	apps := []models.Application{}
	q := s.db.NewSelect().Model(&apps).OrderExpr("a.applied_at DESC, a.id DESC")
	if f.RaceID != uuid.Nil {
		q = q.Where("a.race_id = ?", f.RaceID)
	}
	if f.MarshalID != uuid.Nil {
		q = q.Where("a.marshal_id = ?", f.MarshalID)
	}
	if f.Status != "" {
		q = q.Where("a.status = ?", f.Status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate(err)
	}
	return apps, nil
}

func (s *Store) CountApplications(ctx context.Context, raceID uuid.UUID) (int, error) {
	n, err := s.db.NewSelect().Model((*models.Application)(nil)).Where("a.race_id = ?", raceID).Count(ctx)
	return n, translate(err)
}

func (s *Store) TransitionApplication(ctx context.Context, a *models.Application, from models.ApplicationStatus) error {
	return writeApplication(ctx, s.db, a, from)
}

// ApproveApplication locks the race row so approvals for one race run one at
// a time, then counts and writes inside the same transaction.
func (s *Store) ApproveApplication(ctx context.Context, a *models.Application, from models.ApplicationStatus, check core.ApprovalCheck) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		race := new(models.Race)
		if err := tx.NewSelect().Model(race).Where("rc.id = ?", a.RaceID).For("UPDATE").Scan(ctx); err != nil {
			return translate(err)
		}
		approved, err := tx.NewSelect().
			Model((*models.Application)(nil)).
			Where("a.race_id = ?", a.RaceID).
			Where("a.status = ?", models.ApplicationApproved).
			Count(ctx)
		if err != nil {
			return err
		}
		if err := check(race, approved); err != nil {
			return err
		}
		return writeApplication(ctx, tx, a, from)
	})
}

// writeApplication is a compare-and-set on the stored status.
func writeApplication(ctx context.Context, db bun.IDB, a *models.Application, from models.ApplicationStatus) error {
	res, err := db.NewUpdate().Model(a).
		Column("status", "responded_at", "responded_by", "manager_notes", "assigned_position", "performance").
		WherePK().
		Where("a.status = ?", from).
		Exec(ctx)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := db.NewSelect().Model((*models.Application)(nil)).Where("a.id = ?", a.ID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrNotFound
	}
	return core.ErrInvalidState
}
