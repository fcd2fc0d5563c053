/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-admission/internal/version"
	"github.com/acronis/go-admission/tier"
)

func newTiersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Print the license tiers available to clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadAppConfig(cfgPath, nil)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			registry, err := cfg.Tiers.Registry()
			if err != nil {
				return err
			}
			return printTiers(cmd.OutOrStdout(), registry)
		},
	}
}

func printTiers(w io.Writer, registry *tier.Registry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Tiers []tier.Tier `yaml:"tiers"`
	}{registry.Tiers()}); err != nil {
		return err
	}
	return enc.Close()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
