package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nekotab/internal/models"
	"nekotab/pkg/errors"
	"nekotab/pkg/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecommission(t *testing.T) (*DecommissionService, *fakeRegistry, *fakeDocker, *fakeAdmin, *secrets.Store) {
	t.Helper()

	cfg := testConfig(t.TempDir())
	reg := newFakeRegistry()
	dc := newFakeDocker()
	admin := &fakeAdmin{}
	store := secrets.NewStore(cfg.Secret.Dir)

	backup := NewBackupService(cfg, reg, dc, store, nil)
	backup.dump = func(ctx context.Context, sec *secrets.TenantSecrets, outPath string) error {
		return os.WriteFile(outPath, []byte("-- dump\n"), 0600)
	}

	svc := NewDecommissionService(cfg, reg, dc, admin, store, backup)
	svc.grace = 0
	return svc, reg, dc, admin, store
}

// latestDump 找出某租户最新的数据库备份文件
func latestDump(t *testing.T, backupDir, subdomain string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(backupDir, subdomain, "db-*.sql.gz"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "应当存在下线前备份")
	return matches[len(matches)-1]
}

// seedActiveTenant 建出一个active租户（注册库+密钥记录）
func seedActiveTenant(t *testing.T, reg *fakeRegistry, store *secrets.Store, subdomain string) string {
	t.Helper()
	tenantID := seedTenantSecrets(t, store, subdomain)
	_, err := reg.UpsertProvisioning(&models.Tenant{
		ID:        tenantID,
		Subdomain: subdomain,
		DBName:    TenantDBName(tenantID),
		DBUser:    TenantDBUser(tenantID),
	})
	require.NoError(t, err)
	require.NoError(t, reg.Activate(tenantID))
	return tenantID
}

func TestDecommissionUnknownTenant(t *testing.T) {
	svc, _, _, _, _ := newTestDecommission(t)

	err := svc.Decommission(context.Background(), "ghost", &DecommissionOptions{Force: true})
	assert.ErrorIs(t, err, errors.ErrTenantNotFound)
}

func TestDecommissionConfirmMismatchHasNoSideEffects(t *testing.T) {
	svc, reg, dc, admin, store := newTestDecommission(t)
	tenantID := seedActiveTenant(t, reg, store, "acme")

	err := svc.Decommission(context.Background(), "acme", &DecommissionOptions{
		Confirm: strings.NewReader("wrong-echo\n"),
	})
	require.Error(t, err)
	assert.True(t, errors.IsSafetyGateAbort(err))

	// 零副作用：没有任何编排层或数据库调用，租户仍是active
	assert.Empty(t, dc.calls)
	assert.Empty(t, admin.callList())
	tenant, _ := reg.GetByID(tenantID)
	assert.Equal(t, models.TenantStatusActive, tenant.Status)

	_, err = store.Load("acme")
	assert.NoError(t, err)
}

func TestDecommissionConfirmExactEcho(t *testing.T) {
	svc, reg, _, _, store := newTestDecommission(t)
	tenantID := seedActiveTenant(t, reg, store, "acme")

	err := svc.Decommission(context.Background(), "acme", &DecommissionOptions{
		Confirm: strings.NewReader("acme\n"),
	})
	require.NoError(t, err)

	tenant, _ := reg.GetByID(tenantID)
	assert.Equal(t, models.TenantStatusDeleted, tenant.Status)
}

func TestDecommissionTeardownOrder(t *testing.T) {
	svc, reg, dc, admin, store := newTestDecommission(t)
	tenantID := seedActiveTenant(t, reg, store, "acme")
	dc.volumes = []string{"tenant-" + tenantID + "_media"}

	err := svc.Decommission(context.Background(), "acme", &DecommissionOptions{Force: true})
	require.NoError(t, err)

	// 编排层：先删栈后删卷
	assert.True(t, dc.called("stack-rm "+StackName(tenantID)))
	assert.True(t, dc.called("volume-rm tenant-"+tenantID+"_media"))

	// 数据库收口顺序：断新连接 → 踢会话 → 删库 → 删角色
	dbName := TenantDBName(tenantID)
	assert.Equal(t, []string{
		"revoke-connect " + dbName,
		"terminate " + dbName,
		"drop-db " + dbName,
		"drop-role " + TenantDBUser(tenantID),
	}, admin.callList())

	// 注册库终态deleted，密钥记录已删除
	tenant, _ := reg.GetByID(tenantID)
	assert.Equal(t, models.TenantStatusDeleted, tenant.Status)
	_, err = store.Load("acme")
	assert.ErrorIs(t, err, errors.ErrTenantNotFound)

	// 删除前产出了备份
	assert.FileExists(t, latestDump(t, svc.cfg.Backup.Dir, "acme"))
}

func TestDecommissionBackupFailureAborts(t *testing.T) {
	svc, reg, dc, admin, store := newTestDecommission(t)
	tenantID := seedActiveTenant(t, reg, store, "acme")

	svc.backup.dump = func(ctx context.Context, sec *secrets.TenantSecrets, outPath string) error {
		return assert.AnError
	}

	err := svc.Decommission(context.Background(), "acme", &DecommissionOptions{Force: true})
	require.Error(t, err)

	// 备份失败时没有任何破坏性步骤
	assert.Empty(t, admin.callList())
	for _, call := range dc.calls {
		assert.NotContains(t, call, "stack-rm")
		assert.NotContains(t, call, "volume-rm")
	}
	tenant, _ := reg.GetByID(tenantID)
	assert.Equal(t, models.TenantStatusActive, tenant.Status)
}

func TestDecommissionIsRerunnable(t *testing.T) {
	svc, reg, _, _, store := newTestDecommission(t)
	seedActiveTenant(t, reg, store, "acme")

	require.NoError(t, svc.Decommission(context.Background(), "acme",
		&DecommissionOptions{Force: true}))

	// 密钥记录已删，重跑会报租户不存在（deleted是终态）
	err := svc.Decommission(context.Background(), "acme", &DecommissionOptions{Force: true})
	assert.ErrorIs(t, err, errors.ErrTenantNotFound)
}
