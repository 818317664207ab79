package main

import (
	"fmt"

	"nekotab/internal/database"
	"nekotab/internal/dbadmin"
	"nekotab/internal/registry"
	"nekotab/internal/services"
	"nekotab/pkg/config"
	"nekotab/pkg/docker"
	"nekotab/pkg/secrets"
	"nekotab/pkg/storage"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nekotabctl",
	Short: "NekoTab租户生命周期运维工具",
	Long: `NekoTab控制面的命令行运维入口。

开通、备份、全量更新和下线都可以不经管理API直接执行，
与控制面服务共享同一套注册库和编排层约定。`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(updateAllCmd)
}

// runtime CLI命令共享的服务装配
type runtime struct {
	cfg          *config.Config
	registry     registry.Registry
	admin        *dbadmin.PostgresAdmin
	provisioner  *services.ProvisionerService
	updater      *services.UpdaterService
	backup       *services.BackupService
	decommission *services.DecommissionService
}

// setup 装配CLI运行环境，调用方负责teardown
func setup() (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %v", err)
	}

	if err := database.Initialize(cfg); err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		return nil, err
	}

	admin, err := dbadmin.NewPostgresAdmin(&cfg.TenantDB)
	if err != nil {
		return nil, fmt.Errorf("连接租户数据库服务器失败: %v", err)
	}

	reg := registry.NewGormRegistry(database.GetDB())
	dockerClient := docker.NewCLI()
	secretStore := secrets.NewStore(cfg.Secret.Dir)

	var uploader storage.Uploader
	if s3, err := storage.NewS3Uploader(&cfg.Backup); err != nil {
		return nil, err
	} else if s3 != nil {
		uploader = s3
	}

	backup := services.NewBackupService(cfg, reg, dockerClient, secretStore, uploader)

	return &runtime{
		cfg:          cfg,
		registry:     reg,
		admin:        admin,
		provisioner:  services.NewProvisionerService(cfg, reg, dockerClient, admin, secretStore),
		updater:      services.NewUpdaterService(cfg, reg, dockerClient),
		backup:       backup,
		decommission: services.NewDecommissionService(cfg, reg, dockerClient, admin, secretStore, backup),
	}, nil
}

// teardown 释放CLI运行环境
func (r *runtime) teardown() {
	if r.admin != nil {
		r.admin.Close()
	}
	_ = database.Close()
}
