package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateAndList(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "create", "add_referrals", "referral bonus ledger kind", "--path", dir)
	require.NoError(t, err)
	_, err = execute(t, "create", "add_streaks", "--path", dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "000001_add_referrals.up.sql"))
	assert.FileExists(t, filepath.Join(dir, "000002_add_streaks.down.sql"))

	out, err := execute(t, "list", "--path", dir)
	require.NoError(t, err)
	assert.Equal(t, "000001_add_referrals\n000002_add_streaks\n", out)
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"create needs a name", []string{"create"}},
		{"steps needs a count", []string{"steps"}},
		{"goto takes one version", []string{"goto", "1", "2"}},
		{"up takes no arguments", []string{"up", "extra"}},
		{"unknown command", []string{"drop"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMigratorCommandsRejectSQLite(t *testing.T) {
	t.Setenv("METERLY_DATABASE_DRIVER", "sqlite")
	t.Setenv("METERLY_DATABASE_SQLITE_PATH", filepath.Join(t.TempDir(), "m.db"))
	t.Chdir(t.TempDir())

	_, err := execute(t, "version")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}
