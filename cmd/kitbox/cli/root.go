package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kitbox",
	Short: "Kitbox — operator tooling for the admin API",
	Long: `Kitbox is the operator CLI for the Kitbox admin backend.
Mint identity tokens, hash gate passwords, manage admin privilege,
and pull dashboard statistics from a running server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(statsCmd)
}
