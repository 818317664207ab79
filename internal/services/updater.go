package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/config"
	"nekotab/pkg/docker"
	"nekotab/pkg/logger"
	"nekotab/pkg/waitfor"
)

// 滚动更新的轮询参数
const (
	updateHealthTimeout  = 120 * time.Second
	updateHealthInterval = 5 * time.Second
	updateBatchDelay     = 10 * time.Second
)

// UpdateSummary 全量更新结果汇总
type UpdateSummary struct {
	Image         string   `json:"image"`
	Updated       int      `json:"updated"`
	Failed        int      `json:"failed"`
	FailedTenants []string `json:"failed_tenants,omitempty"`
}

// UpdaterService 全量滚动更新服务。租户清单以编排层实时状态为准
// （容忍注册库漂移），与注册库不一致时只告警不跳过。
// 租户间严格串行，用吞吐量换坏镜像的爆炸半径。
type UpdaterService struct {
	cfg      *config.Config
	registry registry.Registry
	docker   docker.Client

	// 健康轮询参数，测试时缩短
	healthTimeout  time.Duration
	healthInterval time.Duration
}

// NewUpdaterService 创建更新服务
func NewUpdaterService(cfg *config.Config, reg registry.Registry, dc docker.Client) *UpdaterService {
	return &UpdaterService{
		cfg:            cfg,
		registry:       reg,
		docker:         dc,
		healthTimeout:  updateHealthTimeout,
		healthInterval: updateHealthInterval,
	}
}

// UpdateAll 把目标镜像滚动推送到所有租户栈。
// 镜像在碰任何租户之前全局拉取校验一次，坏镜像直接终止整轮。
func (s *UpdaterService) UpdateAll(ctx context.Context, tag string) (*UpdateSummary, error) {
	appLogger := logger.GetLogger()

	if tag == "" {
		tag = s.cfg.Docker.ImageTag
	}
	image := fmt.Sprintf("%s/nekotab:%s", s.cfg.Docker.RegistryURL, tag)
	summary := &UpdateSummary{Image: image}

	appLogger.Infof("全量更新开始 image=%s", image)
	if err := s.docker.ImagePull(ctx, image); err != nil {
		return summary, fmt.Errorf("镜像拉取失败，终止更新: %w", err)
	}

	stacks, err := s.docker.ListStacks(ctx, stackPrefix)
	if err != nil {
		return summary, fmt.Errorf("枚举租户栈失败: %w", err)
	}
	if len(stacks) == 0 {
		appLogger.Warn("编排层没有任何租户栈")
		return summary, nil
	}

	s.warnRegistryDrift(stacks)

	// 逐租户串行更新，绝不并行
	for _, stack := range stacks {
		tenantID := strings.TrimPrefix(stack, stackPrefix)

		if err := s.updateTenant(ctx, tenantID, image); err != nil {
			appLogger.Errorf("租户更新失败 tenant=%s: %v", tenantID, err)
			appendAudit(s.registry, tenantID, models.LogActionUpdate, models.LogStatusFailed,
				err.Error(), map[string]interface{}{"image": image}, 0)
			summary.Failed++
			summary.FailedTenants = append(summary.FailedTenants, tenantID)
			continue
		}

		appendAudit(s.registry, tenantID, models.LogActionUpdate, models.LogStatusSuccess,
			"", map[string]interface{}{"image": image}, 0)
		summary.Updated++
	}

	appLogger.Infof("全量更新结束 updated=%d failed=%d", summary.Updated, summary.Failed)
	return summary, nil
}

// updateTenant 更新单个租户：主服务带健康门控和显式回滚，
// worker服务尽力而为不做门控
func (s *UpdaterService) updateTenant(ctx context.Context, tenantID, image string) error {
	appLogger := logger.GetLogger()
	webService := WebServiceName(tenantID)

	exists, err := s.docker.ServiceExists(ctx, webService)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("应用服务不存在: %s", webService)
	}

	// 副本并行度固定为1，start-first保证新副本健康后才停旧副本，
	// 编排层的failure_action=rollback只是兜底，超时回滚由这里显式触发
	opts := docker.UpdateOptions{
		Image:         image,
		Parallelism:   1,
		Delay:         updateBatchDelay,
		Order:         "start-first",
		FailureAction: "rollback",
		RegistryAuth:  true,
	}
	if err := s.docker.ServiceUpdate(ctx, webService, opts); err != nil {
		return fmt.Errorf("下发更新失败: %w", err)
	}

	// 健康轮询：超时是"结果未知"，显式回滚到更新前的规格
	err = waitfor.Until(ctx, s.healthTimeout, s.healthInterval, func() (bool, error) {
		state, err := s.docker.ServiceState(ctx, webService)
		if err != nil {
			return false, err
		}
		return state == "running", nil
	})
	if err != nil {
		appLogger.Warnf("健康检查超时，回滚 service=%s", webService)
		if rbErr := s.docker.ServiceRollback(ctx, webService); rbErr != nil {
			appLogger.Errorf("回滚失败 service=%s: %v", webService, rbErr)
		}
		return fmt.Errorf("健康检查超时，已回滚: %w", err)
	}

	// 健康通过后尽力执行迁移，失败只告警不回滚
	if containerID, err := s.docker.ContainerIDByName(ctx, webService); err == nil && containerID != "" {
		if _, err := s.docker.ContainerExec(ctx, containerID, s.cfg.Docker.MigrateCommand); err != nil {
			appLogger.Warnf("更新后迁移失败 tenant=%s: %v", tenantID, err)
		}
	}

	// worker服务更新不做健康门控（无入站流量，回滚收益低），失败只告警
	s.updateWorkerBestEffort(ctx, tenantID, image)

	return nil
}

// updateWorkerBestEffort worker服务的尽力而为更新
func (s *UpdaterService) updateWorkerBestEffort(ctx context.Context, tenantID, image string) {
	workerService := WorkerServiceName(tenantID)

	exists, err := s.docker.ServiceExists(ctx, workerService)
	if err != nil || !exists {
		return
	}

	opts := docker.UpdateOptions{Image: image, Parallelism: 1, RegistryAuth: true}
	if err := s.docker.ServiceUpdate(ctx, workerService, opts); err != nil {
		logger.GetLogger().Warnf("worker服务更新失败 tenant=%s: %v", tenantID, err)
	}
}

// warnRegistryDrift 对比编排层清单和注册库active租户，漂移只告警。
// 编排层是"现在有什么"的权威，注册库是生命周期状态的权威。
func (s *UpdaterService) warnRegistryDrift(stacks []string) {
	if s.registry == nil {
		return
	}

	appLogger := logger.GetLogger()

	stackSet := make(map[string]bool, len(stacks))
	for _, stack := range stacks {
		stackSet[strings.TrimPrefix(stack, stackPrefix)] = true
	}

	active, _, err := s.registry.List(models.TenantStatusActive, 1, 1000)
	if err != nil {
		appLogger.Warnf("读取注册库失败，跳过漂移检查: %v", err)
		return
	}

	registrySet := make(map[string]bool, len(active))
	for _, tenant := range active {
		registrySet[tenant.ID] = true
		if !stackSet[tenant.ID] {
			appLogger.Warnf("注册库漂移: 租户 %s (%s) 为active但编排层无对应栈",
				tenant.ID, tenant.Subdomain)
		}
	}
	for id := range stackSet {
		if !registrySet[id] {
			appLogger.Warnf("注册库漂移: 编排层存在栈 tenant-%s 但注册库无active记录", id)
		}
	}
}
