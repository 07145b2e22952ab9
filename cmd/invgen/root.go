// Root command for the invgen CLI.
package main

import (
	"github.com/spf13/cobra"
)

// Version is the CLI version string.
const Version = "0.1.0"

// Exit codes: 1 for configuration and usage errors, 2 for processing
// failures.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:     "invgen",
	Short:   "invgen generates investigation files from structural models",
	Version: Version,
	Long: `invgen flattens a set of structural-model mmCIF files into a
relational table, runs a configured list of transformation operations
against it, and serializes the result as one investigation mmCIF file.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: $(CWD)/.invgen)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
}
