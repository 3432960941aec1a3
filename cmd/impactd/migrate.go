package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"impact-story-backend/pkg/config"
	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/logging"
)

// NewMigrateCommand applies the database schema: tables, remote procedures and
// row-level policies.
func NewMigrateCommand() *cobra.Command {
	var (
		dsn       string
		printOnly bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  "Apply the database schema to POSTGRES_DSN (or --dsn). With --print the script is written to stdout instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), database.Schema())
				return err
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.PostgresDSN
			}
			if dsn == "" {
				return fmt.Errorf("no database: set POSTGRES_DSN or pass --dsn")
			}

			log := logging.New(cfg)
			log.WithField("dsn", database.MaskDSN(dsn)).Info("Connecting to database")

			pg, err := database.NewPostgresDatabase(dsn, log)
			if err != nil {
				return err
			}
			defer pg.Close()

			counts, err := database.Migrate(cmd.Context(), pg.DB(), log)
			if err != nil {
				return err
			}
			for _, table := range database.Tables {
				fmt.Fprintf(cmd.OutOrStdout(), "%-15s %d rows\n", table, counts[table])
			}
			log.Info("Database schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (default $POSTGRES_DSN)")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")

	return cmd
}
