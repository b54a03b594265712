package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/tokengate/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration without starting the gate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d issuer(s), trusted issuer %q, storage %s\n",
			len(cfg.Auth.Issuers), cfg.Auth.TrustedIssuer, cfg.Storage.Type)
		return nil
	},
}
