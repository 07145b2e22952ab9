// Package main provides the invgen CLI, which denormalizes structural
// model files and generates investigation mmCIF files from a
// configured operation list.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
}

// buildLogger constructs the process logger. Verbose runs log at debug
// level, everything else at info.
func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
