package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ngageoint/scale/internal/common/database"
	"github.com/ngageoint/scale/internal/store/postgres"
)

func migrateDbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrateDatabase",
		Short: "migrates the scale database to the latest version",
		RunE:  migrateDatabase,
	}
	cmd.Flags().Duration(
		"timeout",
		5*time.Minute,
		"Duration after which the migration will fail if it has not completed")
	return cmd
}

func migrateDatabase(cmd *cobra.Command, _ []string) error {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return errors.WithStack(err)
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}
	start := time.Now()
	log.Info("Beginning scale database migration")
	db, err := database.OpenPgxPool(config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "Failed to connect to database")
	}
	defer db.Close()
	migrations, err := postgres.Migrations()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := database.UpdateDatabase(ctx, db, migrations); err != nil {
		return errors.WithMessage(err, "Failed to migrate scale database")
	}
	log.Infof("Scale database migrated in %s", time.Since(start))
	return nil
}
