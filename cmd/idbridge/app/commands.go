// Package app provides the entry point for the idbridge command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idbridge/idbridge/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "idbridge",
	DisableAutoGenTag: true,
	Short:             "idbridge federates enterprise identity into scoped AWS credentials",
	Long: `idbridge accepts SAML assertions and OIDC ID tokens from an enterprise
identity provider, maps directory groups to application roles, mints signed
sessions, and exchanges the federated identity for temporary AWS credentials
scoped to per-user S3 prefixes via S3 Access Grants.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the idbridge CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
