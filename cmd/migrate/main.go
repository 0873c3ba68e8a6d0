package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/db"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|target|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory (create and validate only)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create; create_<table> renders a table skeleton")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=target")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "miravo-migrate"})
	if err := run(opts, logg); err != nil {
		logg.Error(context.Background(), "migrate.failed", err)
		os.Exit(1)
	}
}

func run(opts options, logg *logger.Logger) error {
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	// Commands that work on files only never touch config or the database.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		if err := migrate.ValidateEmbedded(); err != nil {
			return fmt.Errorf("embedded migrations: %w", err)
		}
		logg.Info(ctx, "migrations valid")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "miravo-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "db_driver": cfg.DB.Driver})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}

	switch opts.cmd {
	case "up", "down", "status":
		err = migrate.Run(ctx, sqlDB, cfg.DB.Driver, opts.cmd)
	case "version":
		var current int64
		current, err = migrate.Version(ctx, sqlDB, cfg.DB.Driver)
		if err == nil {
			logg.Info(logg.WithField(ctx, "version", current), "migration version")
		}
	case "target":
		if opts.version == "" {
			return errors.New("missing -version for target")
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, cfg.DB.Driver, opts.version)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
	if err != nil {
		return err
	}
	logg.Info(ctx, "migrate done")
	return nil
}
