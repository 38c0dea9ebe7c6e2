package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the meetgate application
var rootCmd = &cobra.Command{
	Use:   "meetgate",
	Short: "Directory login and Webex meeting scheduling backend",
	Long: `meetgate authenticates users against an LDAP directory, issues signed
session tokens and schedules Webex meetings on their behalf through a single
host account.

It can run as:
  - An HTTP API server (default)
  - A one-shot connectivity check against the directory and Webex`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "meetgate version %s\n" .Version}}`)

	// If no subcommand is provided, start the server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
