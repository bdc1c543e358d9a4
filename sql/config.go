package sql

import (
	"io"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

const (
	// DefaultMaxColumns is the default bound on the number of result columns
	// a single SELECT may produce after wildcard expansion.
	DefaultMaxColumns = 2000
	// DefaultMaxDepth is the default bound on nested SELECT compilation.
	DefaultMaxDepth = 64
	// DefaultMaxCompoundSelect is the default bound on the number of terms
	// in a compound SELECT.
	DefaultMaxCompoundSelect = 500
)

// Config holds the settings that affect how a query is compiled. It is
// passed explicitly through the Context to every compile entry point.
type Config struct {
	// FullColumnNames names every result column coming from a table as
	// "table.column".
	FullColumnNames bool `yaml:"full_column_names"`
	// ShortColumnNames names result columns coming from a table with just
	// the column name, even when the query has several sources.
	ShortColumnNames bool `yaml:"short_column_names"`
	// MaxColumns bounds the number of columns in a result set.
	MaxColumns int `yaml:"max_columns"`
	// MaxDepth bounds the nesting of SELECT statements.
	MaxDepth int `yaml:"max_depth"`
	// MaxCompoundSelect bounds the number of terms in a compound SELECT.
	MaxCompoundSelect int `yaml:"max_compound_select"`
	// DisableFlattening turns off merging of FROM clause subqueries into
	// their parent query.
	DisableFlattening bool `yaml:"disable_flattening"`
	// DisablePushDown turns off copying of outer WHERE terms into FROM
	// clause subqueries.
	DisablePushDown bool `yaml:"disable_push_down"`
	// DisableCoroutines forces FROM clause subqueries to be materialized.
	DisableCoroutines bool `yaml:"disable_coroutines"`
	// Debug enables debug logging of the compiler phases.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a configuration with every optimization enabled
// and default limits.
func DefaultConfig() *Config {
	return &Config{
		ShortColumnNames:  true,
		MaxColumns:        DefaultMaxColumns,
		MaxDepth:          DefaultMaxDepth,
		MaxCompoundSelect: DefaultMaxCompoundSelect,
	}
}

// LoadConfig reads a YAML configuration. Settings not present in the input
// keep their default values.
func LoadConfig(r io.Reader) (*Config, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ErrInvalidConfig.Wrap(err, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every limit in the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.MaxColumns <= 0:
		return ErrInvalidConfig.New("max_columns must be positive")
	case c.MaxDepth <= 0:
		return ErrInvalidConfig.New("max_depth must be positive")
	case c.MaxCompoundSelect <= 0:
		return ErrInvalidConfig.New("max_compound_select must be positive")
	}
	return nil
}
