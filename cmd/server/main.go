package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nekotab/internal/database"
	"nekotab/internal/dbadmin"
	"nekotab/internal/registry"
	"nekotab/internal/router"
	"nekotab/internal/services"
	"nekotab/pkg/config"
	"nekotab/pkg/docker"
	"nekotab/pkg/logger"
	"nekotab/pkg/secrets"
	"nekotab/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting NekoTab control plane...")

	// 初始化注册库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
		if err := database.CloseRedisQueue(); err != nil {
			appLogger.Error("Failed to close Redis:", err)
		}
	}()

	// 执行注册库迁移
	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 种子数据（API密钥）
	if err := seedData(); err != nil {
		appLogger.Fatalf("Failed to initialize seed data: %v", err)
	}

	// 租户数据库服务器的管理员连接
	admin, err := dbadmin.NewPostgresAdmin(&cfg.TenantDB)
	if err != nil {
		appLogger.Fatalf("Failed to connect tenant database server: %v", err)
	}
	defer admin.Close()

	// 组装生命周期服务
	reg := registry.NewGormRegistry(database.GetDB())
	dockerClient := docker.NewCLI()
	secretStore := secrets.NewStore(cfg.Secret.Dir)

	var uploader storage.Uploader
	if s3, err := storage.NewS3Uploader(&cfg.Backup); err != nil {
		appLogger.Fatalf("Failed to initialize object storage: %v", err)
	} else if s3 != nil {
		uploader = s3
	}

	provisioner := services.NewProvisionerService(cfg, reg, dockerClient, admin, secretStore)
	backup := services.NewBackupService(cfg, reg, dockerClient, secretStore, uploader)
	decommission := services.NewDecommissionService(cfg, reg, dockerClient, admin, secretStore, backup)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 启动开通任务分发器
	dispatcher := services.NewDispatcher(database.GetRedisQueue(), provisioner)
	dispatcher.Start()
	defer dispatcher.Stop()

	// 启动定时备份调度器
	backupScheduler := services.NewBackupScheduler(reg, backup, cfg.Backup.Schedule)
	if err := backupScheduler.Start(); err != nil {
		appLogger.Errorf("Failed to start backup scheduler: %v", err)
		// 不影响主服务启动
	}
	defer backupScheduler.Stop()

	// 设置路由
	r := router.SetupRouter(&router.Deps{
		Registry:     reg,
		Provisioner:  provisioner,
		Decommission: decommission,
	})

	// 启动服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Control plane listening on :%s", cfg.Server.Port)

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down control plane...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Control plane stopped")
}
