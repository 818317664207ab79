package services

import (
	"context"
	"fmt"
	"sync"

	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/config"
	"nekotab/pkg/docker"
	"nekotab/pkg/errors"
)

// testConfig 服务测试的基础配置
func testConfig(tmpDir string) *config.Config {
	return &config.Config{
		Docker: config.DockerConfig{
			RegistryURL:    "registry.test",
			ImageTag:       "latest",
			DataRoot:       tmpDir + "/tenants",
			MigrateCommand: "python manage.py migrate --noinput",
			MediaPath:      "/app/media",
		},
		Domain: config.DomainConfig{
			Base:     "nekotab.test",
			Reserved: []string{"www", "admin", "api"},
		},
		Tenant: config.TenantDefaults{
			CPULimit:       "1.0",
			MemoryLimit:    "512M",
			StorageLimitGB: 10,
		},
		Backup: config.BackupConfig{
			Dir:           tmpDir + "/backups",
			RetentionDays: 7,
		},
		Secret: config.SecretConfig{
			Dir:           tmpDir + "/secrets",
			EncryptionKey: "0123456789abcdef0123456789abcdef",
		},
		TenantDB: config.TenantDBConfig{Host: "localhost", Port: "5432"},
	}
}

// fakeRegistry 内存注册库，校验与GormRegistry相同的状态机
type fakeRegistry struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	logs    []*models.ProvisioningLog
	nextLog uint

	failUpsert bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tenants: make(map[string]*models.Tenant)}
}

func (r *fakeRegistry) UpsertProvisioning(t *models.Tenant) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpsert {
		return nil, fmt.Errorf("upsert failed")
	}

	if existing, ok := r.tenants[t.ID]; ok {
		if existing.Status == models.TenantStatusDeleted {
			return nil, errors.ErrInvalidTransition
		}
		existing.Status = models.TenantStatusReprovisioning
		existing.DBPasswordEncrypted = t.DBPasswordEncrypted
		existing.SecretKeyEncrypted = t.SecretKeyEncrypted
		return existing, nil
	}

	clone := *t
	clone.Status = models.TenantStatusProvisioning
	r.tenants[t.ID] = &clone
	return &clone, nil
}

func (r *fakeRegistry) transition(id, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return errors.ErrTenantNotFound
	}
	if !models.CanTransition(t.Status, to) {
		return errors.ErrInvalidTransition
	}
	t.Status = to
	return nil
}

func (r *fakeRegistry) Activate(id string) error { return r.transition(id, models.TenantStatusActive) }
func (r *fakeRegistry) Suspend(id string) error {
	return r.transition(id, models.TenantStatusSuspended)
}
func (r *fakeRegistry) Resume(id string) error { return r.transition(id, models.TenantStatusActive) }
func (r *fakeRegistry) MarkDeleted(id string) error {
	return r.transition(id, models.TenantStatusDeleted)
}

func (r *fakeRegistry) GetByID(id string) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[id]; ok {
		return t, nil
	}
	return nil, errors.ErrTenantNotFound
}

func (r *fakeRegistry) GetBySubdomain(subdomain string) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if t.Subdomain == subdomain {
			return t, nil
		}
	}
	return nil, errors.ErrTenantNotFound
}

func (r *fakeRegistry) List(status string, page, pageSize int) ([]*models.Tenant, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Tenant
	for _, t := range r.tenants {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRegistry) Stats() (*registry.Stats, error) { return &registry.Stats{}, nil }

func (r *fakeRegistry) StatusDistribution() ([]*registry.StatusCount, error) { return nil, nil }

func (r *fakeRegistry) AppendLog(entry *models.ProvisioningLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLog++
	entry.ID = r.nextLog
	r.logs = append(r.logs, entry)
	return nil
}

func (r *fakeRegistry) ListLogs(tenantID string, page, pageSize int) ([]*models.ProvisioningLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ProvisioningLog
	for _, l := range r.logs {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRegistry) ListLogsAfter(tenantID string, afterID uint) ([]*models.ProvisioningLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ProvisioningLog
	for _, l := range r.logs {
		if l.TenantID == tenantID && l.ID > afterID {
			out = append(out, l)
		}
	}
	return out, nil
}

// lastLog 取某租户最后一条指定action的审计日志
func (r *fakeRegistry) lastLog(tenantID, action string) *models.ProvisioningLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].TenantID == tenantID && r.logs[i].Action == action {
			return r.logs[i]
		}
	}
	return nil
}

// fakeDocker 记录调用轨迹的编排层客户端
type fakeDocker struct {
	mu    sync.Mutex
	calls []string

	stacks          []string
	runningReplicas map[string]int
	serviceStates   map[string]string
	containers      map[string]string
	volumes         []string

	failPull    bool
	failDeploy  bool
	failUpdate  map[string]bool
	execResults map[string]error
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		runningReplicas: make(map[string]int),
		serviceStates:   make(map[string]string),
		containers:      make(map[string]string),
		failUpdate:      make(map[string]bool),
		execResults:     make(map[string]error),
	}
}

func (d *fakeDocker) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDocker) called(call string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (d *fakeDocker) ImagePull(ctx context.Context, ref string) error {
	d.record("pull " + ref)
	if d.failPull {
		return fmt.Errorf("manifest unknown")
	}
	return nil
}

func (d *fakeDocker) StackDeploy(ctx context.Context, composeFile, stackName string) error {
	d.record("deploy " + stackName)
	if d.failDeploy {
		return fmt.Errorf("deploy failed")
	}
	return nil
}

func (d *fakeDocker) StackRemove(ctx context.Context, stackName string) error {
	d.record("stack-rm " + stackName)
	return nil
}

func (d *fakeDocker) ListStacks(ctx context.Context, prefix string) ([]string, error) {
	return d.stacks, nil
}

func (d *fakeDocker) ServiceExists(ctx context.Context, name string) (bool, error) {
	_, inReplicas := d.runningReplicas[name]
	_, inStates := d.serviceStates[name]
	return inReplicas || inStates, nil
}

func (d *fakeDocker) ServiceRunningReplicas(ctx context.Context, name string) (int, error) {
	return d.runningReplicas[name], nil
}

func (d *fakeDocker) ServiceState(ctx context.Context, name string) (string, error) {
	return d.serviceStates[name], nil
}

func (d *fakeDocker) ServiceUpdate(ctx context.Context, name string, opts docker.UpdateOptions) error {
	d.record("update " + name)
	if d.failUpdate[name] {
		return fmt.Errorf("update rejected")
	}
	return nil
}

func (d *fakeDocker) ServiceRollback(ctx context.Context, name string) error {
	d.record("rollback " + name)
	return nil
}

func (d *fakeDocker) ServiceScale(ctx context.Context, name string, replicas int) error {
	d.record(fmt.Sprintf("scale %s=%d", name, replicas))
	return nil
}

func (d *fakeDocker) ContainerIDByName(ctx context.Context, namePrefix string) (string, error) {
	return d.containers[namePrefix], nil
}

func (d *fakeDocker) ContainerExec(ctx context.Context, containerID string, command string) (string, error) {
	d.record("exec " + containerID)
	if err := d.execResults[containerID]; err != nil {
		return "", err
	}
	return "ok", nil
}

func (d *fakeDocker) ContainerExecToFile(ctx context.Context, containerID string, command string, outPath string) error {
	d.record("exec-to-file " + containerID)
	return nil
}

func (d *fakeDocker) ListVolumes(ctx context.Context, prefix string) ([]string, error) {
	return d.volumes, nil
}

func (d *fakeDocker) VolumeRemove(ctx context.Context, name string) error {
	d.record("volume-rm " + name)
	return nil
}

// fakeAdmin 记录调用顺序的数据库管理端
type fakeAdmin struct {
	mu    sync.Mutex
	calls []string

	failEnsureDB bool
}

func (a *fakeAdmin) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *fakeAdmin) callList() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAdmin) EnsureRole(user, password string) error {
	a.record("ensure-role " + user)
	return nil
}

func (a *fakeAdmin) EnsureDatabase(name, owner string) error {
	a.record("ensure-db " + name)
	if a.failEnsureDB {
		return fmt.Errorf("create database failed")
	}
	return nil
}

func (a *fakeAdmin) LockdownDatabase(name, owner string) error {
	a.record("lockdown " + name)
	return nil
}

func (a *fakeAdmin) RevokeConnect(name string) error {
	a.record("revoke-connect " + name)
	return nil
}

func (a *fakeAdmin) TerminateBackends(name string) error {
	a.record("terminate " + name)
	return nil
}

func (a *fakeAdmin) DropDatabase(name string) error {
	a.record("drop-db " + name)
	return nil
}

func (a *fakeAdmin) DropRole(user string) error {
	a.record("drop-role " + user)
	return nil
}

func (a *fakeAdmin) Close() error { return nil }
