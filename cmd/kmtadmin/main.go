// cmd/kmtadmin/main.go
// Administrative tasks that have no HTTP surface.
//
// Usage:
//
//	go run ./cmd/kmtadmin create-manager --name "Ops" --email ops@example.com --password secret123
//	go run ./cmd/kmtadmin set-marshal-status --email m@example.com --status approved
//	LEGACY_MYSQL_DSN="user:pass@tcp(host:3306)/kmt?parseTime=true" go run ./cmd/kmtadmin import-legacy --owner ops@example.com
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/kmtapi/config"
	"github.com/padraicbc/kmtapi/core"
	bundb "github.com/padraicbc/kmtapi/db"
	applog "github.com/padraicbc/kmtapi/logger"
	"github.com/padraicbc/kmtapi/models"
)

// systemCaller acts with manager rights on behalf of the operator.
var systemCaller = core.Caller{Role: models.RoleManager}

type env struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *bun.DB
	store *bundb.Store
	svc   *core.Service

	// Set only when SEQUENCE_BACKEND is redis.
	rdb *redis.Client
	seq *bundb.RedisSequencer
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := applog.New(cfg.Debug)
	if err != nil {
		return nil, err
	}
	db, err := bundb.Setup(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := bundb.CreateTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	e := &env{cfg: cfg, log: log, db: db, store: bundb.NewStore(db)}
	opts := []core.Option{
		core.WithLogger(log),
		core.WithLocation(cfg.Location),
		core.WithMarshalBase(cfg.MarshalBase),
	}
	if cfg.SequenceBackend == config.SequenceRedis {
		e.rdb = bundb.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := e.rdb.Ping(ctx).Err(); err != nil {
			e.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		e.seq = bundb.NewRedisSequencer(e.rdb, bundb.RedisSequencePrefix)
		opts = append(opts, core.WithSequencer(e.seq))
	}
	e.svc = core.New(e.store, opts...)
	return e, nil
}

func (e *env) close() {
	_ = e.log.Sync()
	_ = e.db.Close()
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
}

func main() {
	root := &cobra.Command{
		Use:           "kmtadmin",
		Short:         "Administer the marshal staffing database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(createManagerCmd(), setMarshalStatusCmd(), importLegacyCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func createManagerCmd() *cobra.Command {
	var reg core.Registration
	cmd := &cobra.Command{
		Use:   "create-manager",
		Short: "Create an approved manager account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			u, err := e.svc.CreateManager(ctx, reg)
			if err != nil {
				return err
			}
			fmt.Printf("manager %q created (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&reg.Password, "password", "", "plain-text password (required)")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "contact phone")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func setMarshalStatusCmd() *cobra.Command {
	var email, status string
	cmd := &cobra.Command{
		Use:   "set-marshal-status",
		Short: "Approve, suspend or reject a marshal account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			u, err := e.store.GetUserByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", email, err)
			}
			u, err = e.svc.SetAccountStatus(ctx, systemCaller, u.ID, models.AccountStatus(status))
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", *u.MarshalID, u.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "marshal email (required)")
	cmd.Flags().StringVar(&status, "status", string(models.AccountApproved), "pending, approved, suspended or rejected")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
