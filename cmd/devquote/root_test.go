package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "devquote dev\n", out)
}

func TestCheckConfig(t *testing.T) {
	env := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(env, []byte("OPENAI_API_KEY=sk-from-file\nSQLITE_PATH=data/dev.db\n"), 0o600))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SQLITE_PATH", "")
	for _, k := range []string{"APP_ENV", "GEMINI_API_KEY", "DATABASE_URL", "SUPABASE_URL", "SUPABASE_KEY", "PORT"} {
		t.Setenv(k, "")
	}
	// godotenv never overrides variables that are already set, even when empty.
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("SQLITE_PATH")

	out, stderr, err := execute(t, "check-config", "--env-file", env, "--addr", ":9000")
	require.NoError(t, err)
	assert.Contains(t, out, "listen:      :9000")
	assert.Contains(t, out, "store:       sqlite data/dev.db")
	assert.Contains(t, out, "configuration OK")
	assert.Contains(t, stderr, "warning: GEMINI_API_KEY is not set")
}

func TestCheckConfigFatal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("APP_ENV", "")
	_, _, err := execute(t, "check-config", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY is required")
}
