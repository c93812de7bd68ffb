package overwatch

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "overwatch %s (commit %s, built %s)\n",
			buildInfo.Version, buildInfo.GitCommit, buildInfo.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
