package commands

import (
	"github.com/spf13/cobra"

	"taskflow/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		pool, err := openDB(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		return repository.Migrate(cmd.Context(), pool, log)
	},
}
