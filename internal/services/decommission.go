package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"nekotab/internal/dbadmin"
	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/config"
	"nekotab/pkg/docker"
	"nekotab/pkg/errors"
	"nekotab/pkg/logger"
	"nekotab/pkg/secrets"
)

// 栈删除后给编排层释放挂载的宽限时间
const volumeReleaseGrace = 10 * time.Second

// DecommissionOptions 下线选项
type DecommissionOptions struct {
	// Force 跳过交互确认（API调用方自行承担确认责任）
	Force bool
	// SkipBackup 跳过下线前备份，仅供备份目标不可用时的逃生通道
	SkipBackup bool
	// Confirm 交互确认的输入源，默认os.Stdin
	Confirm io.Reader
}

// DecommissionService 租户下线服务。安全门（先备份、后确认）都通过后
// 才产生任何破坏性副作用；拆除阶段逐步容错推进，保证部分失败后重跑
// 能收敛到完全清理。
type DecommissionService struct {
	cfg      *config.Config
	registry registry.Registry
	docker   docker.Client
	admin    dbadmin.Admin
	secrets  *secrets.Store
	backup   *BackupService

	// 栈删除后的卷释放宽限，测试时缩短
	grace time.Duration
}

// NewDecommissionService 创建下线服务
func NewDecommissionService(cfg *config.Config, reg registry.Registry, dc docker.Client,
	admin dbadmin.Admin, store *secrets.Store, backup *BackupService) *DecommissionService {
	return &DecommissionService{
		cfg:      cfg,
		registry: reg,
		docker:   dc,
		admin:    admin,
		secrets:  store,
		backup:   backup,
		grace:    volumeReleaseGrace,
	}
}

// Decommission 永久删除一个租户及其全部资源。
// 顺序：确认 → 备份 → 栈 → 卷 → 数据库收口 → 删库删角色 → 注册库标记 → 密钥记录。
// 确认未通过时零副作用。
func (s *DecommissionService) Decommission(ctx context.Context, subdomain string, opts *DecommissionOptions) error {
	appLogger := logger.GetLogger()
	startTime := time.Now()

	if opts == nil {
		opts = &DecommissionOptions{}
	}

	// 密钥记录是下线资源清单的规范来源
	sec, err := s.secrets.Load(subdomain)
	if err != nil {
		return err
	}
	tenantID := sec.TenantID

	// 安全门1：交互确认必须逐字回显子域名，未通过则零副作用退出
	if !opts.Force {
		if err := s.confirm(subdomain, opts.Confirm); err != nil {
			return err
		}
	}

	// 安全门2：任何破坏性步骤之前先备份，备份失败则终止（除非显式跳过）
	if !opts.SkipBackup {
		if _, err := s.backup.Backup(ctx, subdomain); err != nil {
			return fmt.Errorf("下线前备份失败，终止下线: %w", err)
		}
	} else {
		appLogger.Warnf("已跳过下线前备份 subdomain=%s", subdomain)
	}

	appendAudit(s.registry, tenantID, models.LogActionDelete, models.LogStatusStarted,
		fmt.Sprintf("开始下线 %s", subdomain), nil, 0)
	appLogger.Infof("下线开始 tenant=%s subdomain=%s", tenantID, subdomain)

	// 此后每一步失败都记录并继续：重跑下线必须能清掉上次的残留
	var failures []string
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			appLogger.Errorf("下线步骤失败 step=%s tenant=%s: %v", name, tenantID, err)
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}

	// 先停栈，再给编排层时间释放卷挂载
	step("stack_remove", func() error {
		return s.docker.StackRemove(ctx, StackName(tenantID))
	})
	time.Sleep(s.grace)

	step("volume_remove", func() error {
		return s.removeVolumes(ctx, tenantID)
	})

	// 数据库收口：先断新连接，再踢存量会话，最后才能删库
	step("revoke_connect", func() error {
		return s.admin.RevokeConnect(sec.DBName)
	})
	step("terminate_backends", func() error {
		return s.admin.TerminateBackends(sec.DBName)
	})
	step("drop_database", func() error {
		return s.admin.DropDatabase(sec.DBName)
	})
	step("drop_role", func() error {
		return s.admin.DropRole(sec.DBUser)
	})

	// 注册库标记deleted是下线生效的权威记录，必须成功
	if err := s.registry.MarkDeleted(tenantID); err != nil {
		appendAudit(s.registry, tenantID, models.LogActionDelete, models.LogStatusFailed,
			fmt.Sprintf("标记删除失败: %v", err), nil, time.Since(startTime))
		return fmt.Errorf("注册库标记删除失败: %w", err)
	}

	// 密钥记录最后删：中途失败时重跑仍能找到资源清单
	step("secrets_delete", func() error {
		return s.secrets.Delete(subdomain)
	})

	duration := time.Since(startTime)
	if len(failures) > 0 {
		appendAudit(s.registry, tenantID, models.LogActionDelete, models.LogStatusWarning,
			"下线完成但有步骤失败",
			map[string]interface{}{"failures": failures}, duration)
		return fmt.Errorf("下线完成但有 %d 个步骤失败，重跑可清理残留: %s",
			len(failures), strings.Join(failures, "; "))
	}

	appendAudit(s.registry, tenantID, models.LogActionDelete, models.LogStatusSuccess,
		fmt.Sprintf("租户 %s 已下线", subdomain), nil, duration)
	appLogger.Infof("下线完成 tenant=%s subdomain=%s 耗时=%s", tenantID, subdomain, duration)
	return nil
}

// confirm 要求操作者逐字输入子域名，防止删错租户
func (s *DecommissionService) confirm(subdomain string, in io.Reader) error {
	if in == nil {
		return errors.NewSafetyGateAbort(subdomain)
	}

	fmt.Printf("即将永久删除租户 %s 的数据库、容器栈和数据卷。\n", subdomain)
	fmt.Printf("请输入子域名 %q 确认: ", subdomain)

	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return errors.NewSafetyGateAbort(subdomain)
	}
	if strings.TrimSpace(line) != subdomain {
		return errors.NewSafetyGateAbort(subdomain)
	}
	return nil
}

// removeVolumes 删除租户栈的全部数据卷
func (s *DecommissionService) removeVolumes(ctx context.Context, tenantID string) error {
	volumes, err := s.docker.ListVolumes(ctx, StackName(tenantID))
	if err != nil {
		return err
	}

	var lastErr error
	for _, volume := range volumes {
		if err := s.docker.VolumeRemove(ctx, volume); err != nil {
			logger.GetLogger().Errorf("删除数据卷失败 volume=%s: %v", volume, err)
			lastErr = err
		}
	}
	return lastErr
}
