package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("gridprobe %s (commit %s, built %s, %s)\n",
			appVersion, appCommit, appDate, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
