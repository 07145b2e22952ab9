// Package paths resolves configuration and output directory locations.
package paths

import (
	"os"
	"path/filepath"
)

// CWD-relative directory names.
const (
	DefaultConfigDirName = ".invgen"
	DefaultOutputDirName = "out"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "INVGEN_CONFIG_DIR"
	EnvOutputDir = "INVGEN_OUTPUT_DIR"
)

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > INVGEN_CONFIG_DIR env > $(CWD)/.invgen.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultConfigDirName), nil
}

// ResolveOutputDir returns the output directory following the
// precedence chain: flag > config.yaml value > INVGEN_OUTPUT_DIR env >
// $(CWD)/out.
func ResolveOutputDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvOutputDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultOutputDirName), nil
}
