package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	require := require.New(t)

	cfg, err := LoadConfig(strings.NewReader(`
full_column_names: true
max_columns: 10
disable_flattening: true
disable_coroutines: true
`))
	require.NoError(err)
	require.True(cfg.FullColumnNames)
	require.True(cfg.ShortColumnNames)
	require.Equal(10, cfg.MaxColumns)
	require.Equal(DefaultMaxDepth, cfg.MaxDepth)
	require.True(cfg.DisableFlattening)
	require.False(cfg.DisablePushDown)
	require.True(cfg.DisableCoroutines)

	cfg, err = LoadConfig(strings.NewReader(""))
	require.NoError(err)
	require.Equal(DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := []string{
		"max_columns: 0",
		"max_depth: -1",
		"max_compound_select: 0",
		"max_columns: [1",
		"max_columns: many",
	}

	for _, input := range testCases {
		t.Run(input, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(input))
			require.True(t, ErrInvalidConfig.Is(err), "unexpected error: %v", err)
		})
	}
}
