package services

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/config"
	"nekotab/pkg/docker"
	"nekotab/pkg/logger"
	"nekotab/pkg/secrets"
	"nekotab/pkg/storage"
)

// 备份时间戳格式
const backupTimeFormat = "20060102-150405"

// BackupResult 一次备份产出
type BackupResult struct {
	Subdomain    string `json:"subdomain"`
	DBDump       string `json:"db_dump"`
	MediaArchive string `json:"media_archive,omitempty"`
	Uploaded     bool   `json:"uploaded"`
	Pruned       int    `json:"pruned"`
}

// BackupService 租户备份服务：数据库逻辑导出为必选（系统记录源），
// 媒体导出和异地复制尽力而为，本地按天数滑动窗口保留。
type BackupService struct {
	cfg      *config.Config
	registry registry.Registry
	docker   docker.Client
	secrets  *secrets.Store
	uploader storage.Uploader

	// 数据库导出入口，测试时替换
	dump func(ctx context.Context, sec *secrets.TenantSecrets, outPath string) error
}

// NewBackupService 创建备份服务，uploader为nil时跳过异地复制
func NewBackupService(cfg *config.Config, reg registry.Registry, dc docker.Client,
	store *secrets.Store, uploader storage.Uploader) *BackupService {
	s := &BackupService{
		cfg:      cfg,
		registry: reg,
		docker:   dc,
		secrets:  store,
		uploader: uploader,
	}
	s.dump = s.pgDump
	return s
}

// Backup 产出租户的时点导出。未知租户直接报错（快速失败），
// 其余步骤的失败按各自策略处理。
func (s *BackupService) Backup(ctx context.Context, subdomain string) (*BackupResult, error) {
	appLogger := logger.GetLogger()
	startTime := time.Now()

	// 密钥记录是规范来源，未找到说明租户不存在
	sec, err := s.secrets.Load(subdomain)
	if err != nil {
		return nil, err
	}

	tenantDir := filepath.Join(s.cfg.Backup.Dir, subdomain)
	if err := os.MkdirAll(tenantDir, 0700); err != nil {
		return nil, fmt.Errorf("创建备份目录失败: %v", err)
	}

	timestamp := time.Now().UTC().Format(backupTimeFormat)
	result := &BackupResult{Subdomain: subdomain}

	// 数据库导出：逻辑备份，剥离属主和权限，可跨主机恢复
	dumpPath := filepath.Join(tenantDir, fmt.Sprintf("db-%s.sql.gz", timestamp))
	if err := s.dump(ctx, sec, dumpPath); err != nil {
		appendAudit(s.registry, sec.TenantID, models.LogActionBackup, models.LogStatusFailed,
			fmt.Sprintf("数据库导出失败: %v", err), nil, time.Since(startTime))
		return nil, fmt.Errorf("数据库导出失败: %w", err)
	}
	result.DBDump = dumpPath

	// 媒体导出：容器不在运行时跳过并告警，数据库才是系统记录源
	mediaPath := filepath.Join(tenantDir, fmt.Sprintf("media-%s.tar.gz", timestamp))
	if s.exportMedia(ctx, sec.TenantID, mediaPath) {
		result.MediaArchive = mediaPath
	}

	// 异地复制：未配置对象存储只降低持久性，不是错误
	if s.uploader != nil {
		result.Uploaded = s.replicate(ctx, subdomain, result)
	} else {
		appLogger.Debug("未配置对象存储，跳过异地复制")
	}

	// 本地保留窗口：按修改时间删除超期文件，不是按数量
	pruned, err := s.pruneOld(tenantDir)
	if err != nil {
		appLogger.Warnf("清理过期备份失败 subdomain=%s: %v", subdomain, err)
	}
	result.Pruned = pruned

	appendAudit(s.registry, sec.TenantID, models.LogActionBackup, models.LogStatusSuccess,
		filepath.Base(dumpPath),
		map[string]interface{}{"uploaded": result.Uploaded, "pruned": pruned},
		time.Since(startTime))

	appLogger.Infof("备份完成 subdomain=%s dump=%s", subdomain, filepath.Base(dumpPath))
	return result, nil
}

// pgDump 执行pg_dump并在本地gzip压缩
func (s *BackupService) pgDump(ctx context.Context, sec *secrets.TenantSecrets, outPath string) error {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", s.cfg.TenantDB.Host,
		"-p", s.cfg.TenantDB.Port,
		"-U", sec.DBUser,
		"--no-owner", "--no-privileges",
		sec.DBName,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+sec.DBPassword)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)

	if err := cmd.Start(); err != nil {
		os.Remove(outPath)
		return err
	}
	if _, err := io.Copy(gzWriter, stdout); err != nil {
		cmd.Wait()
		os.Remove(outPath)
		return err
	}
	if err := gzWriter.Close(); err != nil {
		cmd.Wait()
		os.Remove(outPath)
		return err
	}
	if err := cmd.Wait(); err != nil {
		// 半截导出不能当作有效备份
		os.Remove(outPath)
		return fmt.Errorf("pg_dump失败: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// exportMedia 从运行中的应用容器导出媒体目录，返回是否产出了归档
func (s *BackupService) exportMedia(ctx context.Context, tenantID, outPath string) bool {
	appLogger := logger.GetLogger()

	containerID, err := s.docker.ContainerIDByName(ctx, WebServiceName(tenantID))
	if err != nil || containerID == "" {
		appLogger.Warnf("应用容器未运行，跳过媒体导出 tenant=%s", tenantID)
		return false
	}

	parent := filepath.Dir(s.cfg.Docker.MediaPath)
	base := filepath.Base(s.cfg.Docker.MediaPath)
	command := fmt.Sprintf("tar czf - -C %s %s", parent, base)

	if err := s.docker.ContainerExecToFile(ctx, containerID, command, outPath); err != nil {
		appLogger.Warnf("媒体导出失败 tenant=%s: %v", tenantID, err)
		return false
	}
	return true
}

// replicate 上传备份制品到对象存储，失败只告警（本地副本仍然有效）
func (s *BackupService) replicate(ctx context.Context, subdomain string, result *BackupResult) bool {
	appLogger := logger.GetLogger()
	ok := true

	artifacts := []string{result.DBDump}
	if result.MediaArchive != "" {
		artifacts = append(artifacts, result.MediaArchive)
	}

	for _, artifact := range artifacts {
		key := subdomain + "/" + filepath.Base(artifact)
		if err := s.uploader.Upload(ctx, artifact, key); err != nil {
			appLogger.Warnf("异地复制失败 key=%s: %v", key, err)
			ok = false
		}
	}
	return ok
}

// pruneOld 删除保留窗口之外的本地备份，返回删除数量
func (s *BackupService) pruneOld(tenantDir string) (int, error) {
	cutoff := time.Now().Add(-time.Duration(s.cfg.Backup.RetentionDays) * 24 * time.Hour)

	entries, err := os.ReadDir(tenantDir)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(tenantDir, entry.Name())); err != nil {
				logger.GetLogger().Warnf("删除过期备份失败 %s: %v", entry.Name(), err)
				continue
			}
			pruned++
		}
	}
	return pruned, nil
}
