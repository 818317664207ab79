package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nekotab/internal/models"
	"nekotab/pkg/errors"
	"nekotab/pkg/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackup(t *testing.T) (*BackupService, *fakeRegistry, *fakeDocker, *secrets.Store) {
	t.Helper()

	cfg := testConfig(t.TempDir())
	reg := newFakeRegistry()
	dc := newFakeDocker()
	store := secrets.NewStore(cfg.Secret.Dir)

	svc := NewBackupService(cfg, reg, dc, store, nil)
	// 测试不依赖真实pg_dump
	svc.dump = func(ctx context.Context, sec *secrets.TenantSecrets, outPath string) error {
		return os.WriteFile(outPath, []byte("-- dump\n"), 0600)
	}
	return svc, reg, dc, store
}

func seedTenantSecrets(t *testing.T, store *secrets.Store, subdomain string) string {
	t.Helper()
	tenantID := DeriveTenantID(subdomain)
	require.NoError(t, store.Save(&secrets.TenantSecrets{
		TenantID:   tenantID,
		Subdomain:  subdomain,
		DBName:     TenantDBName(tenantID),
		DBUser:     TenantDBUser(tenantID),
		DBPassword: "pw",
		SecretKey:  "sk",
	}))
	return tenantID
}

func TestBackupUnknownTenantFailsClosed(t *testing.T) {
	svc, _, _, _ := newTestBackup(t)

	_, err := svc.Backup(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ErrTenantNotFound)
}

func TestBackupProducesDumpAndSkipsMediaWithoutContainer(t *testing.T) {
	svc, reg, _, store := newTestBackup(t)
	tenantID := seedTenantSecrets(t, store, "acme")

	result, err := svc.Backup(context.Background(), "acme")
	require.NoError(t, err)

	// 数据库导出必须存在；容器不在运行时媒体导出跳过
	assert.FileExists(t, result.DBDump)
	assert.Regexp(t, `db-\d{8}-\d{6}\.sql\.gz$`, result.DBDump)
	assert.Empty(t, result.MediaArchive)
	assert.False(t, result.Uploaded)

	last := reg.lastLog(tenantID, models.LogActionBackup)
	require.NotNil(t, last)
	assert.Equal(t, models.LogStatusSuccess, last.Status)
}

func TestBackupExportsMediaWhenContainerRunning(t *testing.T) {
	svc, _, dc, store := newTestBackup(t)
	tenantID := seedTenantSecrets(t, store, "acme")
	dc.containers[WebServiceName(tenantID)] = "container-1"

	result, err := svc.Backup(context.Background(), "acme")
	require.NoError(t, err)

	assert.True(t, dc.called("exec-to-file container-1"))
	assert.Regexp(t, `media-\d{8}-\d{6}\.tar\.gz$`, result.MediaArchive)
}

func TestBackupDumpFailureIsFatal(t *testing.T) {
	svc, reg, _, store := newTestBackup(t)
	tenantID := seedTenantSecrets(t, store, "acme")

	svc.dump = func(ctx context.Context, sec *secrets.TenantSecrets, outPath string) error {
		return fmt.Errorf("connection refused")
	}

	_, err := svc.Backup(context.Background(), "acme")
	require.Error(t, err)

	last := reg.lastLog(tenantID, models.LogActionBackup)
	require.NotNil(t, last)
	assert.Equal(t, models.LogStatusFailed, last.Status)
}

func TestPgDumpStartFailureLeavesNoPartialFile(t *testing.T) {
	svc, _, _, store := newTestBackup(t)
	seedTenantSecrets(t, store, "acme")

	// 清空PATH让pg_dump找不到，启动即失败
	t.Setenv("PATH", t.TempDir())

	sec, err := store.Load("acme")
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "db-20260101-000000.sql.gz")
	require.Error(t, svc.pgDump(context.Background(), sec, outPath))

	// 空壳导出文件不能留下来，否则会被当成有效备份
	assert.NoFileExists(t, outPath)
}

func TestBackupPrunesBeyondRetentionWindow(t *testing.T) {
	svc, _, _, store := newTestBackup(t)
	seedTenantSecrets(t, store, "acme")

	tenantDir := filepath.Join(svc.cfg.Backup.Dir, "acme")
	require.NoError(t, os.MkdirAll(tenantDir, 0700))

	// 窗口内和窗口外各一个历史备份
	oldFile := filepath.Join(tenantDir, "db-20200101-000000.sql.gz")
	freshFile := filepath.Join(tenantDir, "db-recent.sql.gz")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0600))
	require.NoError(t, os.WriteFile(freshFile, []byte("fresh"), 0600))

	stale := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	result, err := svc.Backup(context.Background(), "acme")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pruned)
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, freshFile)
	assert.FileExists(t, result.DBDump)
}
