package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Up(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	stdout := new(bytes.Buffer)

	require.NoError(t, run([]string{"-db", dbPath}, stdout, new(bytes.Buffer)))
	assert.Contains(t, stdout.String(), "Schema version 1 (dirty: false)")

	// Running again is a no-op.
	stdout.Reset()
	require.NoError(t, run([]string{"-db", dbPath}, stdout, new(bytes.Buffer)))
	assert.Contains(t, stdout.String(), "Schema version 1")
}

func TestRun_Down(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	stdout := new(bytes.Buffer)

	require.NoError(t, run([]string{"-db", dbPath, "-down"}, stdout, new(bytes.Buffer)))
	assert.Contains(t, stdout.String(), "Schema version 0")
}

func TestRun_EnvDefaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("DB_DRIVER", "")

	require.NoError(t, run(nil, new(bytes.Buffer), new(bytes.Buffer)))
	assert.FileExists(t, dbPath)
}

func TestRun_UnsupportedDriver(t *testing.T) {
	err := run([]string{"-driver", "mysql", "-db", "x"}, new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}
