package models

import "time"

// APIKey 控制面编程访问密钥，key_hash为bcrypt散列，tenant_id为空表示管理密钥
type APIKey struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	KeyHash    string     `gorm:"size:128;unique;not null" json:"-"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	TenantID   *string    `gorm:"size:12" json:"tenant_id,omitempty"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// TableName 表名
func (k *APIKey) TableName() string {
	return "api_keys"
}
