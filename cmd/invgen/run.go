// Run command for the invgen CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"invgen/internal/paths"
	"invgen/internal/pipeline"
	"invgen/pkg/types"
)

var (
	flagModelFolder  string
	flagOperations   string
	flagID           string
	flagOutputFolder string
	flagBatchSize    int
)

var runCmd = &cobra.Command{
	Use:   "run [model files...]",
	Short: "Generate an investigation file from model files",
	Long: `Run loads the given structural-model files (or every .cif file in
--model-folder), builds the denormalized entity table, executes the
operations document, and writes <output-folder>/<id>.cif.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig(args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "run:", err)
			os.Exit(exitUserError)
		}

		log, err := buildLogger(flagVerbose)
		if err != nil {
			fmt.Fprintln(os.Stderr, "run:", err)
			os.Exit(exitSysError)
		}
		defer log.Sync()

		p := pipeline.New(cfg, log)
		defer p.Close()
		if err := p.Prepare(); err != nil {
			log.Error("preparation failed", zap.Error(err))
			os.Exit(exitSysError)
		}
		path, err := p.Run()
		if err != nil {
			log.Error("run failed", zap.Error(err))
			os.Exit(exitSysError)
		}

		fmt.Println(path)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&flagModelFolder, "model-folder", "", "directory of .cif model files (alternative to positional paths)")
	runCmd.Flags().StringVar(&flagOperations, "operations", "", "operations JSON document (default: config)")
	runCmd.Flags().StringVar(&flagID, "id", "", "investigation identifier (default: generated I-<uuid>)")
	runCmd.Flags().StringVar(&flagOutputFolder, "output-folder", "", "output directory (default: config)")
	runCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "rows per insert transaction (default: config)")
}

// buildRunConfig merges flags, positional arguments, and config.yaml
// into the run configuration. Flags win over config values.
func buildRunConfig(args []string) (types.Config, error) {
	configDir, err := resolveConfigDir()
	if err != nil {
		return types.Config{}, err
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return types.Config{}, err
	}

	cfg := types.Config{
		InvestigationID: flagID,
		OperationsFile:  flagOperations,
		BatchSize:       flagBatchSize,
	}
	if cfg.InvestigationID == "" {
		cfg.InvestigationID = "I-" + uuid.NewString()
	}
	if cfg.OperationsFile == "" {
		cfg.OperationsFile = v.GetString(cfgKeyOperations)
	}
	cfg.OutputDir, err = paths.ResolveOutputDir(flagOutputFolder, v.GetString(cfgKeyOutputFolder))
	if err != nil {
		return types.Config{}, err
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = v.GetInt(cfgKeyBatchSize)
	}

	cfg.ModelFiles, err = modelFiles(args)
	if err != nil {
		return types.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// modelFiles resolves the model file list from positional arguments or
// the --model-folder flag. Folder listings are sorted so run order is
// stable.
func modelFiles(args []string) ([]string, error) {
	if len(args) > 0 {
		if flagModelFolder != "" {
			return nil, fmt.Errorf("pass either file paths or --model-folder, not both: %w", types.ErrInvalidConfig)
		}
		return args, nil
	}
	if flagModelFolder == "" {
		return nil, types.ErrNoSources
	}
	files, err := filepath.Glob(filepath.Join(flagModelFolder, "*.cif"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", flagModelFolder, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s has no .cif files: %w", flagModelFolder, types.ErrNoSources)
	}
	sort.Strings(files)
	return files, nil
}
