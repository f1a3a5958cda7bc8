package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/padraicbc/kmtapi/config"
	"github.com/padraicbc/kmtapi/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return db, nil
}

type table struct {
	model       any
	foreignKeys []string
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []table{
		{model: (*models.SequenceCounter)(nil)},
		{model: (*models.User)(nil)},
		{model: (*models.Race)(nil), foreignKeys: []string{
			`("created_by") REFERENCES "users" ("id")`,
		}},
		{model: (*models.Assignment)(nil), foreignKeys: []string{
			`("race_id") REFERENCES "races" ("id") ON DELETE CASCADE`,
			`("marshal_id") REFERENCES "users" ("id")`,
		}},
		{model: (*models.Application)(nil), foreignKeys: []string{
			`("race_id") REFERENCES "races" ("id") ON DELETE RESTRICT`,
			`("marshal_id") REFERENCES "users" ("id")`,
		}},
		{model: (*models.Notification)(nil), foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
		}},
	}

	for _, t := range tables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", t.model, err)
		}
	}

	// Tables created before the unique tags existed still need the
	// constraints the ledger relies on.
	constraints := []string{
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'applications_no_dupes') THEN ALTER TABLE applications ADD CONSTRAINT applications_no_dupes UNIQUE (marshal_id, race_id); END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'race_assignments_no_dupes') THEN ALTER TABLE race_assignments ADD CONSTRAINT race_assignments_no_dupes UNIQUE (race_id, marshal_id); END IF; END $$`,
	}
	for _, stmt := range constraints {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("constraint: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*models.Notification)(nil), "notifications_user_idx", []string{"user_id", "id"}},
		{(*models.Application)(nil), "applications_race_status_idx", []string{"race_id", "status"}},
		{(*models.Race)(nil), "races_start_idx", []string{"start_date"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("index %s: %w", idx.name, err)
		}
	}

	return nil
}
