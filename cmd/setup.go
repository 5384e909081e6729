package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/curate/internal/services"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the built-in config template to the given path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", configPath)
	r.writePlain("✓ Wrote %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set [jellyfin] url, username and password (or CURATE_JELLYFIN_PASSWORD)\n")
	r.writePlain("2. Point [suggestions] at an OpenAI-compatible endpoint, or set provider = \"spotify\"\n")
	r.writePlain("3. Run 'curate setup check' to verify everything is reachable\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	for _, m := range applied {
		r.logger.Debug("migration applied", "version", m.Version, "at", m.AppliedAt)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d migrations)\n", config.Database.Path, len(applied))
}

// SetupCheck validates the loaded configuration and probes the media server, the suggestion source,
// the acquisition tool and the database. Every check runs; the first failure is returned.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	var first error
	check := func(name string, err error) {
		if err != nil {
			r.writePlain("✗ %-12s %v\n", name, err)
			if first == nil {
				first = err
			}
			return
		}
		r.writePlain("✓ %s\n", name)
	}

	check("config", r.config.Validate())

	api, err := services.NewJellyfinService(r.config.Jellyfin, r.logger)
	if err == nil {
		err = api.Ping(ctx)
	}
	check("jellyfin", err)

	if err == nil {
		if _, lerr := r.libraryClient(); lerr != nil {
			err = lerr
		} else if r.guard != nil {
			_, err = r.guard.Session(ctx)
		}
		check("session", err)
	}

	_, err = r.suggestionSource()
	check("suggestions", err)

	switch {
	case r.config.Acquisition.TargetDir == "":
		r.writePlain("- %-12s skipped, no target_dir\n", "acquisition")
	case !services.NewToolAcquirer(r.config.Acquisition, r.logger).HealthCheck(ctx):
		check("acquisition", fmt.Errorf("%w: %s", shared.ErrAcquisitionUnavailable, r.config.Acquisition.Command))
	default:
		check("acquisition", nil)
	}

	_, err = r.runStore()
	check("database", err)

	return first
}
