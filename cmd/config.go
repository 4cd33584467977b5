package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tidbyt.dev/bustime/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manages the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Writes the default config, to stdout or a new file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  configInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func configInit(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return config.WriteDefault(cmd.OutOrStdout())
	}

	f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	defer f.Close()

	if err := config.WriteDefault(f); err != nil {
		return err
	}
	return f.Close()
}
