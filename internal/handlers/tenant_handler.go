package handlers

import (
	"context"
	stderrors "errors"
	"time"

	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/internal/services"
	"nekotab/pkg/errors"
	"nekotab/pkg/logger"
	"nekotab/pkg/pagination"
	"nekotab/pkg/queue"
	"nekotab/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// 后台下线任务的时间上限
const decommissionTimeout = 30 * time.Minute

// TenantHandler 租户生命周期处理器
type TenantHandler struct {
	registry     registry.Registry
	queue        *queue.RedisQueue
	provisioner  *services.ProvisionerService
	decommission *services.DecommissionService
	reserved     []string
}

// NewTenantHandler 创建租户处理器
func NewTenantHandler(reg registry.Registry, q *queue.RedisQueue,
	provisioner *services.ProvisionerService, decommission *services.DecommissionService,
	reserved []string) *TenantHandler {
	return &TenantHandler{
		registry:     reg,
		queue:        q,
		provisioner:  provisioner,
		decommission: decommission,
		reserved:     reserved,
	}
}

// CreateTenantRequest 创建租户请求
type CreateTenantRequest struct {
	Subdomain  string `json:"subdomain" binding:"required"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email" binding:"omitempty,email"`
	OwnerID    string `json:"owner_id"`
	Plan       string `json:"plan"`
}

// Create 创建租户：校验后入队异步开通，返回202和job_id
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErr, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range validationErr {
				switch fieldErr.Field() {
				case "Subdomain":
					response.BadRequest(c, "subdomain为必填字段")
					return
				case "OwnerEmail":
					response.BadRequest(c, "owner_email格式错误")
					return
				}
			}
		}
		response.BadRequest(c, "参数错误")
		return
	}

	if err := services.ValidateSubdomain(req.Subdomain, h.reserved); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// 已存在且未删除的子域名视为冲突；重新开通走CLI的provision命令
	if existing, err := h.registry.GetBySubdomain(req.Subdomain); err == nil {
		if existing.Status == models.TenantStatusDeleted {
			response.Conflict(c, "该子域名的租户已删除，不可复用")
			return
		}
		response.Conflict(c, "该子域名已被占用")
		return
	}

	jobID := uuid.New().String()
	msg := &queue.ProvisionMessage{
		JobID:      jobID,
		Subdomain:  req.Subdomain,
		Name:       req.Name,
		OwnerEmail: req.OwnerEmail,
		OwnerID:    req.OwnerID,
		Plan:       req.Plan,
		Source:     "api",
	}
	if err := h.queue.Enqueue(msg); err != nil {
		logger.GetLogger().Errorf("开通任务入队失败 subdomain=%s: %v", req.Subdomain, err)
		response.ServerError(c, "开通任务入队失败")
		return
	}

	response.Accepted(c, "开通任务已受理", gin.H{
		"job_id":    jobID,
		"subdomain": req.Subdomain,
		"tenant_id": services.DeriveTenantID(req.Subdomain),
	})
}

// GetAll 分页查询租户列表，支持status过滤
func (h *TenantHandler) GetAll(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	status := c.Query("status")

	tenants, total, err := h.registry.List(status, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "查询租户列表失败")
		return
	}

	response.SuccessWithPage(c, tenants, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

// GetByID 查询租户详情
func (h *TenantHandler) GetByID(c *gin.Context) {
	tenant, err := h.registry.GetByID(c.Param("id"))
	if err != nil {
		if stderrors.Is(err, errors.ErrTenantNotFound) {
			response.NotFound(c, "租户不存在")
			return
		}
		response.ServerError(c, "查询租户失败")
		return
	}

	response.Success(c, tenant)
}

// SuspendRequest 暂停请求
type SuspendRequest struct {
	Reason string `json:"reason"`
}

// Suspend 暂停租户
func (h *TenantHandler) Suspend(c *gin.Context) {
	var req SuspendRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.provisioner.Suspend(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		h.lifecycleError(c, err, "暂停租户失败")
		return
	}

	response.SuccessWithMessage(c, "租户已暂停", nil)
}

// Resume 恢复租户
func (h *TenantHandler) Resume(c *gin.Context) {
	if err := h.provisioner.Resume(c.Request.Context(), c.Param("id")); err != nil {
		h.lifecycleError(c, err, "恢复租户失败")
		return
	}

	response.SuccessWithMessage(c, "租户已恢复", nil)
}

// Delete 删除租户：confirm=true必填（API调用方承担确认责任），
// 先备份后拆除，在后台执行
func (h *TenantHandler) Delete(c *gin.Context) {
	if c.Query("confirm") != "true" {
		response.BadRequest(c, "删除为不可逆操作，需携带confirm=true")
		return
	}

	tenant, err := h.registry.GetByID(c.Param("id"))
	if err != nil {
		if stderrors.Is(err, errors.ErrTenantNotFound) {
			response.NotFound(c, "租户不存在")
			return
		}
		response.ServerError(c, "查询租户失败")
		return
	}
	if tenant.Status == models.TenantStatusDeleted {
		response.Conflict(c, "租户已删除")
		return
	}

	subdomain := tenant.Subdomain
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), decommissionTimeout)
		defer cancel()

		opts := &services.DecommissionOptions{Force: true}
		if err := h.decommission.Decommission(ctx, subdomain, opts); err != nil {
			logger.GetLogger().Errorf("后台下线失败 subdomain=%s: %v", subdomain, err)
		}
	}()

	response.Accepted(c, "下线任务已受理", gin.H{"subdomain": subdomain})
}

// GetStats 平台级租户统计
func (h *TenantHandler) GetStats(c *gin.Context) {
	stats, err := h.registry.Stats()
	if err != nil {
		response.ServerError(c, "查询统计失败")
		return
	}

	response.Success(c, stats)
}

// GetLogs 分页查询租户的开通审计日志
func (h *TenantHandler) GetLogs(c *gin.Context) {
	params := pagination.ParsePageParams(c)

	logs, total, err := h.registry.ListLogs(c.Param("id"), params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "查询审计日志失败")
		return
	}

	response.SuccessWithPage(c, logs, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

// GetJobStatus 查询开通任务状态
func (h *TenantHandler) GetJobStatus(c *gin.Context) {
	status, err := h.queue.GetJobStatus(c.Param("job_id"))
	if err != nil {
		response.ServerError(c, "查询任务状态失败")
		return
	}
	if len(status) == 0 {
		response.NotFound(c, "任务不存在或已过期")
		return
	}

	response.Success(c, status)
}

// lifecycleError 生命周期操作的统一错误映射
func (h *TenantHandler) lifecycleError(c *gin.Context, err error, fallback string) {
	switch {
	case stderrors.Is(err, errors.ErrTenantNotFound):
		response.NotFound(c, "租户不存在")
	case stderrors.Is(err, errors.ErrInvalidTransition):
		response.Conflict(c, "当前状态不允许该操作")
	default:
		response.ServerError(c, fallback)
	}
}
