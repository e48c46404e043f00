package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Advisory trading signal bot for Telegram channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultPath, "path to the YAML config")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newStrategyCmd(&cfgPath),
		newConfigCmd(&cfgPath),
		newSignalCmd(&cfgPath),
	)
	return root
}
