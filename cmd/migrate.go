package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the report_history table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeFn, err := initHistory(ctx, "migrate")
		if err != nil {
			return err
		}
		defer closeFn()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("report_history ready", zap.String("driver", cfg.History.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
