package services

import (
	"context"
	"fmt"
	"time"

	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/logger"

	"github.com/robfig/cron/v3"
)

// 单个租户备份的时间上限
const scheduledBackupTimeout = 30 * time.Minute

// BackupScheduler 定时备份调度器：按cron表达式遍历所有active租户逐个备份。
// 单租户失败不影响其他租户。
type BackupScheduler struct {
	registry registry.Registry
	backup   *BackupService
	schedule string
	cron     *cron.Cron
	running  bool
}

// NewBackupScheduler 创建定时备份调度器
func NewBackupScheduler(reg registry.Registry, backup *BackupService, schedule string) *BackupScheduler {
	return &BackupScheduler{
		registry: reg,
		backup:   backup,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start 启动调度器
func (s *BackupScheduler) Start() error {
	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}
	if s.schedule == "" {
		logger.GetLogger().Info("未配置备份计划，定时备份已禁用")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runAll); err != nil {
		return fmt.Errorf("无效的备份cron表达式 %q: %v", s.schedule, err)
	}

	s.cron.Start()
	s.running = true

	logger.GetLogger().Infof("定时备份调度器已启动，cron: %s", s.schedule)
	return nil
}

// Stop 停止调度器
func (s *BackupScheduler) Stop() {
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	logger.GetLogger().Info("定时备份调度器已停止")
}

// runAll 备份所有active租户
func (s *BackupScheduler) runAll() {
	appLogger := logger.GetLogger()
	appLogger.Info("定时备份开始")

	tenants, total, err := s.registry.List(models.TenantStatusActive, 1, 1000)
	if err != nil {
		appLogger.Errorf("定时备份读取租户列表失败: %v", err)
		return
	}

	succeeded, failed := 0, 0
	for _, tenant := range tenants {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledBackupTimeout)
		_, err := s.backup.Backup(ctx, tenant.Subdomain)
		cancel()

		if err != nil {
			appLogger.Errorf("定时备份失败 subdomain=%s: %v", tenant.Subdomain, err)
			failed++
			continue
		}
		succeeded++
	}

	appLogger.Infof("定时备份结束 total=%d succeeded=%d failed=%d", total, succeeded, failed)
}
