package types

import "errors"

// DefaultBatchSize bounds how many entity records are buffered before a
// batch insert into the query surface.
const DefaultBatchSize = 1000

// Config holds the parameters of one investigation run.
type Config struct {
	// InvestigationID is stamped on every row and names the output file.
	InvestigationID string `json:"investigation_id" yaml:"investigation_id"`

	// ModelFiles lists the structural-model documents to denormalize.
	// Iteration order is the order given here; ordinal and group
	// assignment depend on it, so callers wanting determinism must pass
	// a stable order.
	ModelFiles []string `json:"model_files" yaml:"model_files"`

	// OperationsFile is the JSON document with "operations" and
	// "mmcif_order".
	OperationsFile string `json:"operations_file" yaml:"operations_file"`

	// OutputDir receives <InvestigationID>.cif.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// BatchSize bounds builder insert batches; 0 means DefaultBatchSize.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// Config validation errors.
var (
	ErrNoInvestigationID = errors.New("investigation id must not be empty")
	ErrNoOperationsFile  = errors.New("operations file must not be empty")
	ErrBatchSizeInvalid  = errors.New("batch size must not be negative")
)

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.InvestigationID == "" {
		return ErrNoInvestigationID
	}
	if len(c.ModelFiles) == 0 {
		return ErrNoSources
	}
	if c.OperationsFile == "" {
		return ErrNoOperationsFile
	}
	if c.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	return nil
}

// EffectiveBatchSize returns BatchSize or the default when unset.
func (c Config) EffectiveBatchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}
