package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/placements/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the config.toml template to --config unless a file already exists there.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		r.logger.Warn("config file already exists, leaving it untouched", "path", path)
		return nil
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Wrote %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Add service credentials to secret.toml, .env or PTRACK_* environment variables\n")
	r.writePlain("2. Run 'ptrack setup database' to create the run history\n")
	r.writePlain("3. Run 'ptrack run <artist or playlist>'\n")
	return nil
}

// SetupDatabase initializes the history database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)
	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("✓ History database ready at %s\n", config.Database.Path)
	return nil
}
