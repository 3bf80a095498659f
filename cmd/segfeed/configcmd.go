package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/segfeed/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration file as segfeed reads it",
	Long: `config loads the configuration file (--config or the default
$XDG_CONFIG_HOME/segfeed/config.toml), validates it and prints the
options that are set.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringP("config", "c", "", "configuration file to read")
	configCmd.Flags().Bool("path", false, "print the default configuration path and exit")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config") //nolint:errcheck // flag name is hardcoded
	onlyPath, _ := cmd.Flags().GetBool("path") //nolint:errcheck // flag name is hardcoded

	if onlyPath {
		fmt.Fprintln(cmd.OutOrStdout(), config.Path())
		return nil
	}

	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return setupError(fmt.Errorf("load config: %w", err))
	}
	if err := config.Encode(cmd.OutOrStdout(), cfg); err != nil {
		return err
	}
	// A file without crop settings is valid on its own; flags may add them.
	if cfg.Transform.CropSize != nil || cfg.Transform.CropHeight != nil {
		if err := cfg.Validate(); err != nil {
			return setupError(err)
		}
	}
	return nil
}
