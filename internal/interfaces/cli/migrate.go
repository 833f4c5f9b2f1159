package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/BOMMesh/internal/infrastructure/database/postgres"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// migrationStatus is the output of `migrate status`.
type migrationStatus struct {
	Version uint     `json:"version"`
	Dirty   bool     `json:"dirty"`
	Files   []string `json:"files"`
}

func (s migrationStatus) String() string {
	state := "clean"
	if s.Dirty {
		state = "dirty"
	}
	return fmt.Sprintf("schema version %d (%s), %d migration files embedded", s.Version, state, len(s.Files))
}

// NewMigrateCmd manages the run storage schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigration(dsn, steps); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn, err := databaseURL(cmd)
				if err != nil {
					return err
				}
				if err := postgres.RunMigrations(dsn); err != nil {
					return err
				}
				PrintSuccess(cmd, "migrations applied")
				return nil
			},
		},
		down,
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark the schema as VERSION without running migrations",
			Long:  "Clears a dirty state left by a failed migration. Inspect the schema before using it.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version < 0 {
					return errors.Newf(errors.ErrCodeBadRequest, "invalid version %q", args[0])
				}
				dsn, err := databaseURL(cmd)
				if err != nil {
					return err
				}
				if err := postgres.ForceMigrationVersion(dsn, version); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("schema forced to version %d", version))
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn, err := databaseURL(cmd)
				if err != nil {
					return err
				}
				version, dirty, err := postgres.MigrationStatus(dsn)
				if err != nil {
					return err
				}
				files, err := postgres.MigrationFiles()
				if err != nil {
					return err
				}
				return PrintResult(cmd, migrationStatus{Version: version, Dirty: dirty, Files: files})
			},
		},
	)
	return cmd
}

func databaseURL(cmd *cobra.Command) (string, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return "", err
	}
	if !cliCtx.Config.Database.Enabled {
		return "", errors.New(errors.ErrCodeValidation, "database is not enabled; set database.enabled")
	}
	return cliCtx.Config.Database.DSN(), nil
}
