package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gormscope/gormscope/pkg/errors"
)

func TestOptionsFromMap(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{
		"fine_tune":         true,
		"foreign_keys":      "false",
		"log_level":         "info",
		"max_open_conns":    10,
		"conn_max_lifetime": "5m",
		"savepoints":        false,
		"application_name":  "worker",
	})
	require.NoError(t, err)

	assert.True(t, opts.FineTune)
	assert.False(t, opts.ForeignKeys)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, 10, opts.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, opts.ConnMaxLifetime)
	assert.True(t, opts.DisableSavepoints)
	assert.Equal(t, map[string]any{"application_name": "worker"}, opts.Extra)
}

func TestOptionsFromMap_Invalid(t *testing.T) {
	_, err := OptionsFromMap(map[string]any{"max_open_conns": []string{"ten"}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}
