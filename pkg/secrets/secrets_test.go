package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"nekotab/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecrets() *TenantSecrets {
	return &TenantSecrets{
		TenantID:   "abc123def456",
		Subdomain:  "acme",
		DBName:     "nekotab_abc123def456",
		DBUser:     "tenant_abc123def456",
		DBPassword: "s3cret",
		SecretKey:  "app-secret-key",
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(testSecrets()))

	loaded, err := store.Load("acme")
	require.NoError(t, err)
	assert.Equal(t, testSecrets(), loaded)
}

func TestLoadMissingTenant(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("ghost")
	assert.ErrorIs(t, err, errors.ErrTenantNotFound)
}

func TestSaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(testSecrets()))

	rotated := testSecrets()
	rotated.DBPassword = "rotated"
	require.NoError(t, store.Save(rotated))

	loaded, err := store.Load("acme")
	require.NoError(t, err)
	assert.Equal(t, "rotated", loaded.DBPassword)
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("权限位在windows上无意义")
	}

	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(testSecrets()))

	info, err := os.Stat(filepath.Join(dir, "acme.env"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDeleteIsTolerant(t *testing.T) {
	store := NewStore(t.TempDir())

	// 不存在也视为已删除
	assert.NoError(t, store.Delete("ghost"))

	require.NoError(t, store.Save(testSecrets()))
	require.NoError(t, store.Delete("acme"))

	_, err := store.Load("acme")
	assert.ErrorIs(t, err, errors.ErrTenantNotFound)
}
