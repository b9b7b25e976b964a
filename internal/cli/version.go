package cli

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rankd version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("rankd v%s\n", version)
	},
}
