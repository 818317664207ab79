package models

import (
	"time"

	"gorm.io/datatypes"
)

// 审计动作常量
const (
	LogActionCreate  = "create"
	LogActionUpdate  = "update"
	LogActionSuspend = "suspend"
	LogActionResume  = "resume"
	LogActionBackup  = "backup"
	LogActionDelete  = "delete"
)

// 审计状态常量
const (
	LogStatusStarted = "started"
	LogStatusSuccess = "success"
	LogStatusWarning = "warning"
	LogStatusFailed  = "failed"
)

// ProvisioningLog 开通审计日志，只追加，从不修改或删除，用于运维取证
type ProvisioningLog struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	TenantID   string         `gorm:"size:12;not null;index" json:"tenant_id"`
	Action     string         `gorm:"size:32;not null" json:"action"`
	Status     string         `gorm:"size:16;not null" json:"status"`
	Message    string         `gorm:"type:text" json:"message,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	DurationMs int            `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TableName 表名
func (l *ProvisioningLog) TableName() string {
	return "provisioning_logs"
}
