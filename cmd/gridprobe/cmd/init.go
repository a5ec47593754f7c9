package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridprobe/gridprobe/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .gridprobe.yaml config file",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = ".gridprobe.yaml"
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		fmt.Println("set the provider API key environment variables before running analyses")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
