package registry

import (
	"errors"
	"fmt"
	"time"

	"nekotab/internal/models"
	apperrors "nekotab/pkg/errors"

	"gorm.io/gorm"
)

// GormRegistry 注册库的gorm实现
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry 创建注册库实例
func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

// UpsertProvisioning 以subdomain为键的幂等写入
func (r *GormRegistry) UpsertProvisioning(tenant *models.Tenant) (*models.Tenant, error) {
	var existing models.Tenant
	err := r.db.Where("subdomain = ?", tenant.Subdomain).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		tenant.Status = models.TenantStatusProvisioning
		if err := r.db.Create(tenant).Error; err != nil {
			// 唯一约束冲突说明并发开通抢先插入了同一子域名，
			// 按重跑路径处理，保证重试收敛
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return r.UpsertProvisioning(tenant)
			}
			return nil, err
		}
		return tenant, nil
	}
	if err != nil {
		return nil, err
	}

	// deleted为终态，不允许复用子域名对应的行
	if !models.CanTransition(existing.Status, models.TenantStatusReprovisioning) {
		return nil, fmt.Errorf("%w: %s -> reprovisioning", apperrors.ErrInvalidTransition, existing.Status)
	}

	updates := map[string]interface{}{
		"status":                models.TenantStatusReprovisioning,
		"db_name":               tenant.DBName,
		"db_user":               tenant.DBUser,
		"db_password_encrypted": tenant.DBPasswordEncrypted,
		"secret_key_encrypted":  tenant.SecretKeyEncrypted,
	}
	if tenant.Name != "" {
		updates["name"] = tenant.Name
	}
	if tenant.OwnerEmail != "" {
		updates["owner_email"] = tenant.OwnerEmail
	}

	if err := r.db.Model(&models.Tenant{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	return r.GetByID(existing.ID)
}

// transition 带状态机校验的状态迁移
func (r *GormRegistry) transition(id, to string, extra map[string]interface{}) error {
	var tenant models.Tenant
	if err := r.db.First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrTenantNotFound
		}
		return err
	}

	if !models.CanTransition(tenant.Status, to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, tenant.Status, to)
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	return r.db.Model(&models.Tenant{}).Where("id = ?", id).Updates(updates).Error
}

// Activate 开通完成
func (r *GormRegistry) Activate(id string) error {
	now := time.Now().UTC()
	return r.transition(id, models.TenantStatusActive, map[string]interface{}{
		"activated_at": &now,
		"suspended_at": nil,
	})
}

// Suspend 暂停租户
func (r *GormRegistry) Suspend(id string) error {
	now := time.Now().UTC()
	return r.transition(id, models.TenantStatusSuspended, map[string]interface{}{
		"suspended_at": &now,
	})
}

// Resume 恢复租户
func (r *GormRegistry) Resume(id string) error {
	return r.transition(id, models.TenantStatusActive, map[string]interface{}{
		"suspended_at": nil,
	})
}

// MarkDeleted 下线完成的权威信号
func (r *GormRegistry) MarkDeleted(id string) error {
	now := time.Now().UTC()
	return r.transition(id, models.TenantStatusDeleted, map[string]interface{}{
		"deleted_at": &now,
	})
}

// GetByID 按ID查询租户
func (r *GormRegistry) GetByID(id string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrTenantNotFound
	}
	return &tenant, err
}

// GetBySubdomain 按子域名查询租户
func (r *GormRegistry) GetBySubdomain(subdomain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.Where("subdomain = ?", subdomain).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrTenantNotFound
	}
	return &tenant, err
}

// List 分页查询
func (r *GormRegistry) List(status string, page, pageSize int) ([]*models.Tenant, int64, error) {
	var tenants []*models.Tenant
	var total int64

	query := r.db.Model(&models.Tenant{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&tenants).Error
	if err != nil {
		return nil, 0, err
	}

	return tenants, total, nil
}

// Stats 各状态租户数量
func (r *GormRegistry) Stats() (*Stats, error) {
	stats := &Stats{}

	r.db.Model(&models.Tenant{}).Count(&stats.Total)
	r.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusActive).Count(&stats.Active)
	r.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusSuspended).Count(&stats.Suspended)
	r.db.Model(&models.Tenant{}).Where("status IN ?", []string{
		models.TenantStatusPending, models.TenantStatusProvisioning, models.TenantStatusReprovisioning,
	}).Count(&stats.Pending)
	r.db.Model(&models.Tenant{}).Where("status = ?", models.TenantStatusDeleted).Count(&stats.Deleted)

	return stats, nil
}

// StatusDistribution 状态分布
func (r *GormRegistry) StatusDistribution() ([]*StatusCount, error) {
	var results []*StatusCount
	err := r.db.Model(&models.Tenant{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&results).Error
	return results, err
}

// AppendLog 追加审计日志
func (r *GormRegistry) AppendLog(entry *models.ProvisioningLog) error {
	return r.db.Create(entry).Error
}

// ListLogs 分页查询审计日志
func (r *GormRegistry) ListLogs(tenantID string, page, pageSize int) ([]*models.ProvisioningLog, int64, error) {
	var logs []*models.ProvisioningLog
	var total int64

	query := r.db.Model(&models.ProvisioningLog{}).Where("tenant_id = ?", tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error
	return logs, total, err
}

// ListLogsAfter 查询增量审计日志
func (r *GormRegistry) ListLogsAfter(tenantID string, afterID uint) ([]*models.ProvisioningLog, error) {
	var logs []*models.ProvisioningLog
	err := r.db.Where("tenant_id = ? AND id > ?", tenantID, afterID).
		Order("id ASC").Find(&logs).Error
	return logs, err
}
