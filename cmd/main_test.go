package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv_SetsUnsetVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEOX_SITE_TEST_LOG_LEVEL=debug\nNEOX_SITE_TEST_PORT=9090\n"), 0o600))
	t.Setenv("NEOX_SITE_TEST_PORT", "8081")
	t.Cleanup(func() { os.Unsetenv("NEOX_SITE_TEST_LOG_LEVEL") })

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "debug", os.Getenv("NEOX_SITE_TEST_LOG_LEVEL"))
	require.Equal(t, "8081", os.Getenv("NEOX_SITE_TEST_PORT"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
