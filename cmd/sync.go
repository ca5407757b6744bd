package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klokku/calaudit/internal/app"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var uid string
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize one user's primary calendar and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			deps, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			u, err := deps.UserService.GetUserByUid(ctx, uid)
			if err != nil {
				return fmt.Errorf("failed to find user %s: %w", uid, err)
			}
			result, syncErr := deps.SyncService.Sync(ctx, u, full)

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return err
			}
			return syncErr
		},
	}

	cmd.Flags().StringVar(&uid, "user", "", "Uid of the user to synchronize")
	cmd.Flags().BoolVar(&full, "full", false, "Discard the sync cursor and resynchronize everything")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
