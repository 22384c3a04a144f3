package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "macro-engine",
		Short:        "Run automation macros against demo, web and Android backends",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "Path to the YAML config file")

	root.AddCommand(newServeCmd(), newRunCmd(), newCheckCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// configFromFlags loads the --config file. For commands that can run without
// one, a missing default file falls back to built-in defaults.
func configFromFlags(cmd *cobra.Command, optional bool) (*Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path, optional && !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
