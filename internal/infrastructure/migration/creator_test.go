package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meterly/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add_coupons", "add_coupons"},
		{"Add Coupon Types", "add_coupon_types"},
		{"  leading and trailing  ", "leading_and_trailing"},
		{"drop--old__column", "drop_old_column"},
		{"v2: badges!", "v2_badges"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	t.Run("numbers after the highest existing migration", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000004_coupons.up.sql"), nil, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000004_coupons.down.sql"), nil, 0o644))

		mf, err := CreateMigration(dir, "Add Purchases", "credit packages and purchases")

		require.NoError(t, err)
		assert.Equal(t, "000005", mf.Version)
		assert.Equal(t, filepath.Join(dir, "000005_add_purchases.up.sql"), mf.UpPath)
		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "-- Add Purchases")
		assert.Contains(t, string(up), "credit packages and purchases")
		down, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "(rollback)")
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "migrations")

		mf, err := CreateMigration(dir, "init", "")

		require.NoError(t, err)
		assert.Equal(t, "000001", mf.Version)
		assert.FileExists(t, mf.DownPath)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "???", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("lists up files only, sorted", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"000002_b.up.sql", "000002_b.down.sql",
			"000001_a.up.sql", "000001_a.down.sql",
			"README.md",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

		got, err := ListMigrations(dir)

		require.NoError(t, err)
		assert.Equal(t, []string{"000001_a", "000002_b"}, got)
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		got, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case filepath.Ext(name) != ".sql":
		case len(name) > 7 && name[len(name)-7:] == ".up.sql":
			ups[name[:len(name)-7]] = true
		case len(name) > 9 && name[len(name)-9:] == ".down.sql":
			downs[name[:len(name)-9]] = true
		}
	}

	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
