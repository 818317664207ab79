package services

import (
	"encoding/json"
	"time"

	"nekotab/internal/models"
	"nekotab/internal/registry"
	"nekotab/pkg/logger"
)

// appendAudit 追加一条开通审计日志。审计失败只记录日志不影响主流程，
// 审计是取证手段而不是工作流的一环。
func appendAudit(reg registry.Registry, tenantID, action, status, message string,
	details map[string]interface{}, duration time.Duration) {

	entry := &models.ProvisioningLog{
		TenantID:   tenantID,
		Action:     action,
		Status:     status,
		Message:    message,
		DurationMs: int(duration.Milliseconds()),
	}

	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = data
		}
	}

	if err := reg.AppendLog(entry); err != nil {
		logger.GetLogger().Errorf("写入审计日志失败 tenant=%s action=%s: %v", tenantID, action, err)
	}
}
