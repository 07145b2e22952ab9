// Config loading for the invgen CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"invgen/internal/paths"
	"invgen/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys.
	cfgKeyOperations   = "operations"
	cfgKeyOutputFolder = "output_folder"
	cfgKeyBatchSize    = "batch_size"
)

// scaffoldConfig is the shape marshalled into config.yaml on first run.
type scaffoldConfig struct {
	Operations   string `yaml:"operations"`
	OutputFolder string `yaml:"output_folder"`
	BatchSize    int    `yaml:"batch_size"`
}

// resolveConfigDir returns the configuration directory following the
// paths package precedence: --config-dir flag > environment > default.
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flagConfigDir)
}

// loadConfig reads config.yaml from the resolved config directory using
// Viper. A missing config file is not an error; defaults apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file
// does not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	body, err := yaml.Marshal(scaffoldConfig{
		Operations:   filepath.Join(configDir, "operations.json"),
		OutputFolder: paths.DefaultOutputDirName,
		BatchSize:    types.DefaultBatchSize,
	})
	if err != nil {
		return fmt.Errorf("render default config: %w", err)
	}
	content := append([]byte("# invgen configuration\n"), body...)
	return os.WriteFile(path, content, 0o644)
}
