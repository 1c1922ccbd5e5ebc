package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/livecaption/wsbroadcast/internal/config"
	"github.com/livecaption/wsbroadcast/internal/errors"
)

func configCmd() *cobra.Command {
	var (
		path     string
		initFile bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, validate or create the configuration",
		Long: `Print the effective configuration after defaults and WSBROADCAST_*
environment overrides, and validate it.

Examples:
  wsbroadcast config
  wsbroadcast config --config prod.yaml
  wsbroadcast config --init`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initFile {
				return writeDefaultConfig(path, force)
			}

			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.New("E102").Wrap(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return cfg.Validate()
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "Config file (default ./"+config.ConfigFileName+" if present)")
	cmd.Flags().BoolVar(&initFile, "init", false, "Write a default config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file with --init")

	return cmd
}

func writeDefaultConfig(path string, force bool) error {
	if path == "" {
		path = config.ConfigFileName
	}
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New("E301").
			WithDetail(path + " already exists").
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := config.New().SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)
	return nil
}
