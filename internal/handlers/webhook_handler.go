package handlers

import (
	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/internal/services"
	"nekotab/pkg/logger"
	"nekotab/pkg/queue"
	"nekotab/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler 外部系统回调处理器
type WebhookHandler struct {
	registry registry.Registry
	queue    *queue.RedisQueue
	reserved []string
}

// NewWebhookHandler 创建回调处理器
func NewWebhookHandler(reg registry.Registry, q *queue.RedisQueue, reserved []string) *WebhookHandler {
	return &WebhookHandler{registry: reg, queue: q, reserved: reserved}
}

// SignupPayload 注册系统的开通回调
type SignupPayload struct {
	Subdomain string `json:"subdomain" binding:"required"`
	Name      string `json:"name"`
	Email     string `json:"email" binding:"required,email"`
	UserID    string `json:"user_id"`
	Plan      string `json:"plan"`
}

// Signup 用户注册后自动开通租户。幂等：重复回调同一子域名时
// 已有租户直接返回成功，不再入队。
func (h *WebhookHandler) Signup(c *gin.Context) {
	var payload SignupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	if err := services.ValidateSubdomain(payload.Subdomain, h.reserved); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if existing, err := h.registry.GetBySubdomain(payload.Subdomain); err == nil {
		if existing.Status == models.TenantStatusDeleted {
			response.Conflict(c, "该子域名的租户已删除，不可复用")
			return
		}
		response.SuccessWithMessage(c, "租户已存在", gin.H{"tenant_id": existing.ID})
		return
	}

	jobID := uuid.New().String()
	msg := &queue.ProvisionMessage{
		JobID:      jobID,
		Subdomain:  payload.Subdomain,
		Name:       payload.Name,
		OwnerEmail: payload.Email,
		OwnerID:    payload.UserID,
		Plan:       payload.Plan,
		Source:     "webhook",
	}
	if err := h.queue.Enqueue(msg); err != nil {
		logger.GetLogger().Errorf("注册回调入队失败 subdomain=%s: %v", payload.Subdomain, err)
		response.ServerError(c, "开通任务入队失败")
		return
	}

	response.Accepted(c, "开通任务已受理", gin.H{
		"job_id":    jobID,
		"subdomain": payload.Subdomain,
	})
}
