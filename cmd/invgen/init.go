// Init command for the invgen CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// starterOperationsJSON seeds an operations document with one example
// of the most common operation kind.
const starterOperationsJSON = `{
  "operations": [
    {
      "operation": "sql_query",
      "target_category": "_pdbx_investigation_entity",
      "target_items": ["source_id", "entity_id", "kind"],
      "operation_parameters": {
        "query": "SELECT source_id, entity_id, kind FROM denormalized_data ORDER BY rowid"
      }
    }
  ],
  "mmcif_order": {
    "_pdbx_investigation_entity": ["source_id", "entity_id", "kind"]
  }
}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold the invgen configuration directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}
		if err := ensureConfigDir(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}
		if err := ensureDefaultConfigFile(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}
		if err := ensureStarterOperations(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitSysError)
		}

		fmt.Println("invgen initialized")
		fmt.Println("  config:    ", filepath.Join(configDir, configFileExt))
		fmt.Println("  operations:", filepath.Join(configDir, "operations.json"))
		return nil
	},
}

// ensureStarterOperations writes a starter operations.json unless one
// already exists.
func ensureStarterOperations(configDir string) error {
	path := filepath.Join(configDir, "operations.json")
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(starterOperationsJSON), 0o644)
}
