package dbadmin

// Admin 租户数据库服务器的管理操作。所有破坏性语句都写成幂等形式
// （容忍"已不存在"），部分失败后重跑任何工作流都是安全的。
type Admin interface {
	// EnsureRole 创建租户专属角色，已存在则只重置密码（重跑开通会换新密码）
	EnsureRole(user, password string) error

	// EnsureDatabase 创建租户专属数据库，已存在不报错
	EnsureDatabase(name, owner string) error

	// LockdownDatabase 撤销PUBLIC默认权限，只授权租户角色（隔离不变量）
	LockdownDatabase(name, owner string) error

	// RevokeConnect 撤销连接权限，堵住终止会话和删库之间的新连接竞争
	RevokeConnect(name string) error

	// TerminateBackends 强制终止该库上的所有后端会话
	TerminateBackends(name string) error

	// DropDatabase 删库，不存在不报错
	DropDatabase(name string) error

	// DropRole 删角色，不存在不报错
	DropRole(user string) error

	// Close 关闭管理员连接
	Close() error
}
