package cmd

import (
	"context"

	"github.com/klokku/calaudit/internal/app"
	"github.com/spf13/cobra"
)

func newRenewChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew-channels",
		Short: "Replace missing or expiring push notification channels once and exit",
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

			return deps.ChannelRenewer.RenewAll(ctx)
		},
	}
}
