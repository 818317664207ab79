package dbadmin

import (
	"fmt"
	"strings"

	"nekotab/pkg/config"
	"nekotab/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresAdmin 通过管理员连接操作租户数据库服务器，
// 连接目标是维护库postgres而不是任何租户库。
type PostgresAdmin struct {
	db *gorm.DB
}

// NewPostgresAdmin 建立管理员连接
func NewPostgresAdmin(cfg *config.TenantDBConfig) (*PostgresAdmin, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=%s",
		cfg.Host, cfg.Port, cfg.AdminUser, cfg.AdminPassword, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接租户数据库服务器失败: %v", err)
	}

	return &PostgresAdmin{db: db}, nil
}

// quoteIdent 标识符转义（库名/角色名不能走参数绑定）
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral 字符串字面量转义
func quoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

// EnsureRole 创建租户角色，已存在则重置密码
func (a *PostgresAdmin) EnsureRole(user, password string) error {
	sql := fmt.Sprintf(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = %s) THEN
				CREATE ROLE %s WITH LOGIN PASSWORD %s;
			END IF;
		END
		$$;`, quoteLiteral(user), quoteIdent(user), quoteLiteral(password))
	if err := a.db.Exec(sql).Error; err != nil {
		return err
	}

	// 重跑开通会生成新密码，这里无条件重置保证密钥记录与实际一致
	return a.db.Exec(fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD %s",
		quoteIdent(user), quoteLiteral(password))).Error
}

// EnsureDatabase 创建租户数据库，已存在不报错
func (a *PostgresAdmin) EnsureDatabase(name, owner string) error {
	var count int64
	if err := a.db.Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", name).
		Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.GetLogger().Debugf("数据库 %s 已存在，跳过创建", name)
		return nil
	}

	// CREATE DATABASE不能在事务块内执行
	return a.db.Exec(fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		quoteIdent(name), quoteIdent(owner))).Error
}

// LockdownDatabase 撤销PUBLIC权限，只授权租户角色
func (a *PostgresAdmin) LockdownDatabase(name, owner string) error {
	if err := a.db.Exec(fmt.Sprintf("REVOKE ALL ON DATABASE %s FROM PUBLIC",
		quoteIdent(name))).Error; err != nil {
		return err
	}
	return a.db.Exec(fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s",
		quoteIdent(name), quoteIdent(owner))).Error
}

// RevokeConnect 撤销连接权限
func (a *PostgresAdmin) RevokeConnect(name string) error {
	var count int64
	if err := a.db.Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", name).
		Scan(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return a.db.Exec(fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM PUBLIC",
		quoteIdent(name))).Error
}

// TerminateBackends 强制终止该库上的所有后端会话
func (a *PostgresAdmin) TerminateBackends(name string) error {
	return a.db.Exec(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = ? AND pid <> pg_backend_pid()`, name).Error
}

// DropDatabase 删库
func (a *PostgresAdmin) DropDatabase(name string) error {
	return a.db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdent(name))).Error
}

// DropRole 删角色
func (a *PostgresAdmin) DropRole(user string) error {
	return a.db.Exec(fmt.Sprintf("DROP ROLE IF EXISTS %s", quoteIdent(user))).Error
}

// Close 关闭管理员连接
func (a *PostgresAdmin) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
