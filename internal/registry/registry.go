package registry

import (
	"nekotab/internal/models"
)

// Stats 平台级租户统计
type Stats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Suspended int64 `json:"suspended"`
	Pending   int64 `json:"pending"`
	Deleted   int64 `json:"deleted"`
}

// StatusCount 状态分布统计
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Registry 注册库仓储接口。四个生命周期工作流共享的唯一可变状态，
// 并发安全依赖subdomain唯一约束在存储层串行化，而不是应用层加锁。
type Registry interface {
	// UpsertProvisioning 以subdomain为键的幂等写入：首次插入status=provisioning，
	// 已存在则更新凭证字段并转入reprovisioning。deleted为终态，拒绝复用。
	UpsertProvisioning(tenant *models.Tenant) (*models.Tenant, error)

	// Activate 开通完成，provisioning/reprovisioning → active，记录激活时间
	Activate(id string) error

	// Suspend active → suspended，记录暂停时间
	Suspend(id string) error

	// Resume suspended → active
	Resume(id string) error

	// MarkDeleted 任意状态 → deleted（终态），记录删除时间。
	// 这是下线流程的权威完成信号，之前的清理步骤都是尽力而为。
	MarkDeleted(id string) error

	// GetByID 按ID查询租户
	GetByID(id string) (*models.Tenant, error)

	// GetBySubdomain 按子域名查询租户
	GetBySubdomain(subdomain string) (*models.Tenant, error)

	// List 分页查询，支持状态过滤
	List(status string, page, pageSize int) ([]*models.Tenant, int64, error)

	// Stats 各状态租户数量
	Stats() (*Stats, error)

	// StatusDistribution 状态分布
	StatusDistribution() ([]*StatusCount, error)

	// AppendLog 追加审计日志（只追加，从不修改）
	AppendLog(entry *models.ProvisioningLog) error

	// ListLogs 分页查询某租户的审计日志
	ListLogs(tenantID string, page, pageSize int) ([]*models.ProvisioningLog, int64, error)

	// ListLogsAfter 查询某租户ID大于afterID的审计日志（日志实时推送用）
	ListLogsAfter(tenantID string, afterID uint) ([]*models.ProvisioningLog, error)
}
