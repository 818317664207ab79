package services

import (
	"context"
	"fmt"
	"time"

	"nekotab/internal/dbadmin"
	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/config"
	"nekotab/pkg/crypto"
	"nekotab/pkg/docker"
	"nekotab/pkg/logger"
	"nekotab/pkg/secrets"
	"nekotab/pkg/waitfor"
)

// 开通流程的轮询参数
const (
	replicaWaitTimeout  = 120 * time.Second
	replicaWaitInterval = 5 * time.Second
)

// ProvisionRequest 开通请求
type ProvisionRequest struct {
	Subdomain  string
	Name       string
	OwnerEmail string
	OwnerID    string
	Plan       string
}

// ProvisionerService 租户开通服务。整个流程对重试幂等：
// 注册库以subdomain唯一约束做upsert，建库建角色容忍已存在，
// 密钥记录和栈部署都是覆盖写。
type ProvisionerService struct {
	cfg      *config.Config
	registry registry.Registry
	docker   docker.Client
	admin    dbadmin.Admin
	secrets  *secrets.Store

	// 副本就绪轮询参数，测试时缩短
	waitTimeout  time.Duration
	waitInterval time.Duration
}

// NewProvisionerService 创建开通服务
func NewProvisionerService(cfg *config.Config, reg registry.Registry, dc docker.Client,
	admin dbadmin.Admin, store *secrets.Store) *ProvisionerService {
	return &ProvisionerService{
		cfg:          cfg,
		registry:     reg,
		docker:       dc,
		admin:        admin,
		secrets:      store,
		waitTimeout:  replicaWaitTimeout,
		waitInterval: replicaWaitInterval,
	}
}

// Provision 开通一个完全隔离的租户：专属数据库、专属容器栈、独立子域名。
// 校验失败在任何副作用之前返回；中途失败后重跑会收敛到相同的终态。
func (s *ProvisionerService) Provision(ctx context.Context, req *ProvisionRequest) (*models.Tenant, error) {
	appLogger := logger.GetLogger()
	startTime := time.Now()

	// 快速失败：格式和保留名单校验，无任何副作用
	if err := ValidateSubdomain(req.Subdomain, s.cfg.Domain.Reserved); err != nil {
		return nil, err
	}

	// 租户ID是子域名的纯函数，绝不独立重新生成
	tenantID := DeriveTenantID(req.Subdomain)

	// 每次开通尝试生成新的密钥和数据库密码
	secretKey, err := generateToken(48)
	if err != nil {
		return nil, err
	}
	dbPassword, err := generateToken(32)
	if err != nil {
		return nil, err
	}

	dbName := TenantDBName(tenantID)
	dbUser := TenantDBUser(tenantID)

	appendAudit(s.registry, tenantID, models.LogActionCreate, models.LogStatusStarted,
		fmt.Sprintf("开始开通 %s", req.Subdomain), nil, 0)

	// 步骤1：创建租户专属数据库和角色，撤销PUBLIC权限（隔离不变量）
	appLogger.Infof("开通步骤 database tenant=%s", tenantID)
	if err := s.createTenantDatabase(dbName, dbUser, dbPassword); err != nil {
		s.failAudit(tenantID, startTime, "创建数据库失败", err)
		return nil, fmt.Errorf("创建租户数据库失败: %w", err)
	}

	// 步骤2：注册库upsert，首次插入provisioning，重跑转入reprovisioning
	encPassword, err := crypto.Encrypt(dbPassword, s.cfg.Secret.EncryptionKey)
	if err != nil {
		return nil, err
	}
	encSecretKey, err := crypto.Encrypt(secretKey, s.cfg.Secret.EncryptionKey)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = req.Subdomain
	}
	plan := req.Plan
	if plan == "" {
		plan = "free"
	}

	_, err = s.registry.UpsertProvisioning(&models.Tenant{
		ID:                  tenantID,
		Subdomain:           req.Subdomain,
		Name:                name,
		OwnerEmail:          req.OwnerEmail,
		OwnerID:             req.OwnerID,
		DBName:              dbName,
		DBUser:              dbUser,
		DBPasswordEncrypted: encPassword,
		SecretKeyEncrypted:  encSecretKey,
		Plan:                plan,
		CPULimit:            s.cfg.Tenant.CPULimit,
		MemoryLimit:         s.cfg.Tenant.MemoryLimit,
		StorageLimitGB:      s.cfg.Tenant.StorageLimitGB,
	})
	if err != nil {
		s.failAudit(tenantID, startTime, "写入注册库失败", err)
		return nil, err
	}

	// 步骤3：落盘租户密钥记录（备份和下线流程的规范来源）
	tenantSecrets := &secrets.TenantSecrets{
		TenantID:   tenantID,
		Subdomain:  req.Subdomain,
		DBName:     dbName,
		DBUser:     dbUser,
		DBPassword: dbPassword,
		SecretKey:  secretKey,
	}
	if err := s.secrets.Save(tenantSecrets); err != nil {
		s.failAudit(tenantID, startTime, "写入密钥记录失败", err)
		return nil, err
	}

	// 步骤4：渲染栈描述文件并部署
	appLogger.Infof("开通步骤 deploy tenant=%s", tenantID)
	composePath, err := RenderCompose(s.cfg, tenantSecrets)
	if err != nil {
		s.failAudit(tenantID, startTime, "渲染栈描述文件失败", err)
		return nil, err
	}
	if err := s.docker.StackDeploy(ctx, composePath, StackName(tenantID)); err != nil {
		s.failAudit(tenantID, startTime, "部署租户栈失败", err)
		return nil, fmt.Errorf("部署租户栈失败: %w", err)
	}

	// 步骤5：等待副本就绪。超时不等于失败，按策略决定是否继续：
	// 默认乐观继续（不让慢编排阻塞激活），strict模式下视为开通失败。
	appLogger.Infof("开通步骤 health_check tenant=%s", tenantID)
	webService := WebServiceName(tenantID)
	err = waitfor.Until(ctx, s.waitTimeout, s.waitInterval, func() (bool, error) {
		running, err := s.docker.ServiceRunningReplicas(ctx, webService)
		if err != nil {
			appLogger.Warnf("副本查询失败 tenant=%s: %v", tenantID, err)
			return false, err
		}
		return running >= 1, nil
	})
	if err != nil {
		if s.cfg.Secret.StrictHealth {
			s.failAudit(tenantID, startTime, "副本就绪超时", err)
			return nil, fmt.Errorf("服务副本在 %s 内未就绪: %w", s.waitTimeout, err)
		}
		appLogger.Warnf("副本就绪超时 tenant=%s，按宽松策略继续激活，需人工关注", tenantID)
		appendAudit(s.registry, tenantID, models.LogActionCreate, models.LogStatusWarning,
			"副本就绪超时，已按宽松策略继续", nil, time.Since(startTime))
	}

	// 步骤6：在应用容器内执行同步迁移入口
	appLogger.Infof("开通步骤 migrations tenant=%s", tenantID)
	if err := s.runMigrations(ctx, tenantID); err != nil {
		s.failAudit(tenantID, startTime, "执行迁移失败", err)
		return nil, fmt.Errorf("执行迁移失败: %w", err)
	}

	// 步骤7：标记active，记录激活时间
	if err := s.registry.Activate(tenantID); err != nil {
		s.failAudit(tenantID, startTime, "标记激活失败", err)
		return nil, err
	}

	duration := time.Since(startTime)
	appendAudit(s.registry, tenantID, models.LogActionCreate, models.LogStatusSuccess,
		fmt.Sprintf("租户已开通: %s.%s", req.Subdomain, s.cfg.Domain.Base),
		map[string]interface{}{"subdomain": req.Subdomain}, duration)

	appLogger.Infof("租户开通完成 tenant=%s subdomain=%s 耗时=%s", tenantID, req.Subdomain, duration)

	return s.registry.GetByID(tenantID)
}

// createTenantDatabase 创建角色和数据库并收紧权限，整体幂等
func (s *ProvisionerService) createTenantDatabase(dbName, dbUser, dbPassword string) error {
	if err := s.admin.EnsureRole(dbUser, dbPassword); err != nil {
		return err
	}
	if err := s.admin.EnsureDatabase(dbName, dbUser); err != nil {
		return err
	}
	return s.admin.LockdownDatabase(dbName, dbUser)
}

// runMigrations 在运行中的应用容器内执行迁移；容器未就绪时跳过并告警
// （副本超时的宽松路径下容器可能还没起来）
func (s *ProvisionerService) runMigrations(ctx context.Context, tenantID string) error {
	containerID, err := s.docker.ContainerIDByName(ctx, WebServiceName(tenantID))
	if err != nil {
		return err
	}
	if containerID == "" {
		logger.GetLogger().Warnf("未找到应用容器，跳过迁移 tenant=%s", tenantID)
		return nil
	}

	output, err := s.docker.ContainerExec(ctx, containerID, s.cfg.Docker.MigrateCommand)
	if err != nil {
		return fmt.Errorf("迁移命令执行失败: %w: %s", err, output)
	}
	return nil
}

// Suspend 暂停租户：服务缩容到0，数据保留
func (s *ProvisionerService) Suspend(ctx context.Context, tenantID, reason string) error {
	tenant, err := s.registry.GetByID(tenantID)
	if err != nil {
		return err
	}

	for _, svc := range []string{WebServiceName(tenantID), WorkerServiceName(tenantID)} {
		if err := s.docker.ServiceScale(ctx, svc, 0); err != nil {
			logger.GetLogger().Errorf("缩容失败 service=%s: %v", svc, err)
		}
	}

	if err := s.registry.Suspend(tenantID); err != nil {
		return err
	}

	appendAudit(s.registry, tenantID, models.LogActionSuspend, models.LogStatusSuccess, reason, nil, 0)
	logger.GetLogger().Infof("租户已暂停 tenant=%s subdomain=%s", tenantID, tenant.Subdomain)
	return nil
}

// Resume 恢复暂停的租户：服务扩容回1
func (s *ProvisionerService) Resume(ctx context.Context, tenantID string) error {
	if _, err := s.registry.GetByID(tenantID); err != nil {
		return err
	}

	for _, svc := range []string{WebServiceName(tenantID), WorkerServiceName(tenantID)} {
		if err := s.docker.ServiceScale(ctx, svc, 1); err != nil {
			logger.GetLogger().Errorf("扩容失败 service=%s: %v", svc, err)
		}
	}

	if err := s.registry.Resume(tenantID); err != nil {
		return err
	}

	appendAudit(s.registry, tenantID, models.LogActionResume, models.LogStatusSuccess, "", nil, 0)
	return nil
}

// failAudit 记录失败审计
func (s *ProvisionerService) failAudit(tenantID string, startTime time.Time, message string, err error) {
	appendAudit(s.registry, tenantID, models.LogActionCreate, models.LogStatusFailed,
		fmt.Sprintf("%s: %v", message, err), nil, time.Since(startTime))
}
