// Command tokengate runs the request-authentication gate in front of a
// protected HTTP service.
//
// Usage:
//
//	tokengate serve --config /etc/tokengate/config.yaml
//	tokengate config validate --config config.yaml
//
// Without a subcommand, serve is run. Configuration is read from the
// YAML file and TOKENGATE_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "Request-authentication gate for HTTP services",
	Long: `tokengate verifies a bearer token on every request before it reaches
the protected service. Tokens are read from the Authorization header or the
UC_TOKEN cookie, checked against the trusted issuer's key set and matched to
an enabled account.`,
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: $TOKENGATE_CONFIG, ./config.yaml, /etc/tokengate/config.yaml)")
	rootCmd.AddCommand(serveCmd, configCmd)
	configCmd.AddCommand(configValidateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
