package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/kmtapi/core"
	"github.com/padraicbc/kmtapi/models"
)

const batchSize = 500

func importLegacyCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Copy marshals and races from the legacy MySQL database",
		Long: `Copies accounts and races from the legacy MySQL database, keeping their
KMT identifiers, then advances the sequence counters past every imported
identifier so new ones never collide. Re-running skips rows already present.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.LegacyMySQLDSN == "" {
				return fmt.Errorf("LEGACY_MYSQL_DSN required, e.g.: user:pass@tcp(host:3306)/kmt?parseTime=true")
			}
			myDB, err := sql.Open("mysql", e.cfg.LegacyMySQLDSN)
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer myDB.Close()
			myDB.SetMaxOpenConns(4)
			if err := myDB.PingContext(ctx); err != nil {
				return fmt.Errorf("ping mysql: %w", err)
			}
			e.log.Info("connected to legacy MySQL")

			ownerUser, err := e.store.GetUserByEmail(ctx, strings.ToLower(owner))
			if err != nil {
				return fmt.Errorf("owner %s: %w", owner, err)
			}

			imp := &importer{my: myDB, pg: e.db, log: e.log, owner: ownerUser.ID}
			steps := []struct {
				name string
				fn   func(context.Context) (int, error)
			}{
				{"users", imp.users},
				{"races", imp.races},
			}
			for _, s := range steps {
				n, err := s.fn(ctx)
				if err != nil {
					return fmt.Errorf("import %s: %w", s.name, err)
				}
				e.log.Info("imported", zap.String("table", s.name), zap.Int("rows", n))
			}

			advancers := []counterAdvancer{e.store}
			if e.seq != nil {
				advancers = append(advancers, e.seq)
			}
			return imp.advanceCounters(ctx, advancers...)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "manager email recorded as creator of imported races (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

type importer struct {
	my    *sql.DB
	pg    *bun.DB
	log   *zap.Logger
	owner uuid.UUID

	maxMarshal int64
	raceDays   map[string]int64
}

// bulkInsert inserts a batch, skipping rows that already exist (idempotent re-runs).
func bulkInsert[T any](ctx context.Context, pgDB *bun.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := pgDB.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

func nullStr(n sql.NullString) string {
	if !n.Valid {
		return ""
	}
	return n.String
}

func (imp *importer) users(ctx context.Context) (int, error) {
	rows, err := imp.my.QueryContext(ctx,
		"SELECT name, email, phone, password, role, status, marshal_id, created_at FROM users")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var batch []models.User
	total := 0
	for rows.Next() {
		var (
			u         models.User
			phone     sql.NullString
			marshalID sql.NullString
			role      string
			status    string
		)
		if err := rows.Scan(&u.Name, &u.Email, &phone, &u.Password, &role, &status, &marshalID, &u.CreatedAt); err != nil {
			return total, err
		}
		u.ID = uuid.New()
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		u.Phone = nullStr(phone)
		u.Role = models.Role(role)
		u.Status = models.AccountStatus(status)
		if !u.Status.Valid() {
			u.Status = models.AccountPending
		}
		u.UpdatedAt = u.CreatedAt
		if u.Role == models.RoleMarshal {
			n, ok := core.ParseMarshalID(nullStr(marshalID))
			if !ok {
				imp.log.Warn("skipping marshal without a valid id", zap.String("email", u.Email))
				continue
			}
			id := core.FormatMarshalID(n)
			u.MarshalID = &id
			imp.maxMarshal = max(imp.maxMarshal, n)
		}

		batch = append(batch, u)
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, imp.pg, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, imp.pg, batch); err != nil {
		return total, err
	}
	return total + len(batch), rows.Err()
}

func (imp *importer) races(ctx context.Context) (int, error) {
	rows, err := imp.my.QueryContext(ctx,
		`SELECT race_id, title, type, track, start_date, end_date, required_marshals, status, created_at
		 FROM races`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	imp.raceDays = make(map[string]int64)
	var batch []models.Race
	total := 0
	for rows.Next() {
		var (
			r         models.Race
			raceType  sql.NullString
			track     sql.NullString
			required  int
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&r.RaceID, &r.Title, &raceType, &track, &r.StartDate, &r.EndDate, &required, &status, &createdAt); err != nil {
			return total, err
		}
		day, n, ok := core.ParseRaceID(r.RaceID)
		if !ok || !r.EndDate.After(r.StartDate) {
			imp.log.Warn("skipping invalid race", zap.String("race_id", r.RaceID))
			continue
		}
		imp.raceDays[day] = max(imp.raceDays[day], n)

		r.ID = uuid.New()
		r.Type = nullStr(raceType)
		r.Track = nullStr(track)
		r.Requirements = []models.MarshalRequirement{{Type: models.GeneralMarshalType, Count: required}}
		r.Status = models.RaceStatus(status)
		if !r.Status.Valid() {
			r.Status = models.RaceScheduled
		}
		r.CreatedBy = imp.owner
		r.CreatedAt = createdAt
		r.UpdatedAt = createdAt

		batch = append(batch, r)
		if len(batch) >= batchSize {
			if err := bulkInsert(ctx, imp.pg, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := bulkInsert(ctx, imp.pg, batch); err != nil {
		return total, err
	}
	return total + len(batch), rows.Err()
}

type counterAdvancer interface {
	AdvanceCounter(ctx context.Context, key string, v int64) error
}

// advanceCounters moves every sequence past the highest imported value on
// each counter backend in use.
func (imp *importer) advanceCounters(ctx context.Context, backends ...counterAdvancer) error {
	for _, b := range backends {
		if imp.maxMarshal > 0 {
			if err := b.AdvanceCounter(ctx, core.MarshalSequenceKey, imp.maxMarshal); err != nil {
				return fmt.Errorf("advance %s: %w", core.MarshalSequenceKey, err)
			}
		}
		for day, n := range imp.raceDays {
			if err := b.AdvanceCounter(ctx, core.RaceSequenceKey(day), n); err != nil {
				return fmt.Errorf("advance race counter %s: %w", day, err)
			}
		}
	}
	imp.log.Info("sequence counters advanced",
		zap.Int64("marshal_max", imp.maxMarshal),
		zap.Int("race_days", len(imp.raceDays)))
	return nil
}
