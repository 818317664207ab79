package models

import (
	"time"

	"gorm.io/datatypes"
)

// 租户状态常量
const (
	TenantStatusPending        = "pending"
	TenantStatusProvisioning   = "provisioning"
	TenantStatusActive         = "active"
	TenantStatusSuspended      = "suspended"
	TenantStatusReprovisioning = "reprovisioning"
	TenantStatusDeleted        = "deleted" // 终态，不再有出边
)

// Tenant 租户模型 - 每个客户实例一行。
// ID是子域名的纯函数（sha256前12位十六进制），用于命名数据库、栈和卷。
type Tenant struct {
	ID        string `gorm:"primarykey;size:12" json:"id"`
	Subdomain string `gorm:"unique;not null;size:64;index" json:"subdomain"`
	Name      string `gorm:"size:255" json:"name,omitempty"`

	// 所有者信息
	OwnerEmail string `gorm:"size:255" json:"owner_email,omitempty"`
	OwnerID    string `gorm:"size:64" json:"owner_id,omitempty"` // SSO外部用户ID

	// 租户专属数据库对象（密码和密钥只存密文，明文仅在租户密钥记录中）
	DBName              string `gorm:"size:64;not null" json:"db_name"`
	DBUser              string `gorm:"size:64;not null" json:"db_user"`
	DBPasswordEncrypted string `gorm:"type:text" json:"-"`
	SecretKeyEncrypted  string `gorm:"type:text" json:"-"`

	// 状态和生命周期
	Status      string     `gorm:"size:20;default:'pending';not null;index" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// 资源配额（编排层执行，此处仅记录）
	CPULimit       string `gorm:"size:16;default:'1.0'" json:"cpu_limit"`
	MemoryLimit    string `gorm:"size:16;default:'512M'" json:"memory_limit"`
	StorageLimitGB int    `gorm:"default:10" json:"storage_limit_gb"`

	// 用量统计
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
	TournamentCount int        `gorm:"default:0" json:"tournament_count"`
	TotalRequests   int        `gorm:"default:0" json:"total_requests"`

	// 套餐
	Plan          string     `gorm:"size:32;default:'free'" json:"plan"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName 表名
func (t *Tenant) TableName() string {
	return "tenants"
}

// CanTransition 状态机校验：deleted为终态；active与suspended可互转；
// 重跑开通会把既有租户转入reprovisioning。
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}

	switch from {
	case TenantStatusDeleted:
		return false
	case TenantStatusPending:
		return to == TenantStatusProvisioning || to == TenantStatusDeleted
	case TenantStatusProvisioning:
		return to == TenantStatusActive || to == TenantStatusReprovisioning || to == TenantStatusDeleted
	case TenantStatusActive:
		return to == TenantStatusSuspended || to == TenantStatusReprovisioning || to == TenantStatusDeleted
	case TenantStatusSuspended:
		return to == TenantStatusActive || to == TenantStatusReprovisioning || to == TenantStatusDeleted
	case TenantStatusReprovisioning:
		return to == TenantStatusActive || to == TenantStatusDeleted
	}
	return false
}
