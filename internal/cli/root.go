// Package cli defines the rankd command tree.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/communityrank/pkg/logger"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "rankd",
	Short: "community rank bot",
	Long: `rankd tracks community activity across Discord and Reddit, awarding
XP and levels into a replicated document store. Configuration is layered:
defaults, then an optional YAML file named by RANKBOT_CONFIG, then
RANKBOT_-prefixed environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A local .env is a convenience for development; absence is fine.
		_ = godotenv.Load()
		return logger.Init()
	},
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}
