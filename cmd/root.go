package cmd

import (
	"os"

	"github.com/klokku/calaudit/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command for the calaudit application
var rootCmd = &cobra.Command{
	Use:   "calaudit",
	Short: "Mirrors Google calendars into PostgreSQL and reports on meeting load",
	Long: `calaudit keeps a local copy of each user's primary Google calendar up to date,
using incremental sync tokens and push notification channels, and reports on
where the meeting time goes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogging()
	},
}

// SetVersion sets the version reported by --version
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calaudit version %s\n" .Version}}`)

	// no subcommand runs the server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config/application.yaml", "Path to the YAML configuration file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newRenewChannelsCmd())
}

func configureLogging() error {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	logrusLevel, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(logrusLevel)
	return nil
}

func loadConfig() (config.Application, error) {
	return config.Load(configPath)
}
