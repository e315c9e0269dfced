package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"handsign/internal/service"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print stored translations as JSON, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			repo, err := openRepository(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			rows, err := service.NewHistory(repo).ListAll(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
}
