package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Registry RegistryConfig
	TenantDB TenantDBConfig
	Docker   DockerConfig
	Domain   DomainConfig
	Tenant   TenantDefaults
	Backup   BackupConfig
	Redis    RedisConfig
	Log      LogConfig
	CORS     CORSConfig
	Secret   SecretConfig
}

type ServerConfig struct {
	Port   string
	Mode   string
	APIKey string // 控制面管理API密钥（X-API-Key），为空时回退到api_keys表校验
}

// RegistryConfig 控制面注册库（tenants/provisioning_logs所在的库）
type RegistryConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// TenantDBConfig 租户数据库服务器的管理员连接（用于建库/删库）
type TenantDBConfig struct {
	Host          string
	Port          string
	AdminUser     string
	AdminPassword string
	SSLMode       string
}

// DockerConfig 编排层配置
type DockerConfig struct {
	RegistryURL    string // 镜像仓库地址
	ImageTag       string // 默认镜像标签
	TemplatePath   string // 租户栈描述文件模板路径（为空使用内置模板）
	DataRoot       string // 租户数据目录根路径（描述文件等落盘位置）
	MigrateCommand string // 应用容器内的同步迁移入口
	MediaPath      string // 应用容器内的媒体目录
}

type DomainConfig struct {
	Base     string   // 平台基础域名，租户地址为 <subdomain>.<base>
	Reserved []string // 保留子域名
}

// TenantDefaults 租户默认资源配额（由编排层执行，控制面仅记录）
type TenantDefaults struct {
	CPULimit          string
	MemoryLimit       string
	CPUReservation    string
	MemoryReservation string
	StorageLimitGB    int
}

type BackupConfig struct {
	Dir           string // 本地备份根目录
	RetentionDays int    // 本地备份保留天数（滑动窗口）
	Schedule      string // 定时备份cron表达式，为空不启用
	S3Bucket      string // 为空不做异地复制
	S3Region      string
	S3Endpoint    string // 兼容MinIO等自建对象存储
	S3AccessKey   string
	S3SecretKey   string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	Format     string // json 或 text
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           int
}

type SecretConfig struct {
	Dir           string // 租户密钥记录目录
	EncryptionKey string // 注册库内敏感字段加密密钥（32字节AES-256）
	StrictHealth  bool   // 开通时副本就绪超时是否视为失败
}

// 全局配置实例和同步锁
var (
	globalConfig *Config
	once         sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		var err error
		globalConfig, err = LoadConfig()
		if err != nil {
			panic("Failed to load config: " + err.Error())
		}
	})
	return globalConfig
}

// 获取环境变量，如果不存在则使用默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 获取环境变量转换为int
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 获取环境变量转换为bool
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// 获取环境变量转换为字符串数组（逗号分隔）
func getEnvAsStringArray(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:   getEnv("SERVER_PORT", "8080"),
			Mode:   getEnv("SERVER_MODE", "debug"),
			APIKey: getEnv("CONTROL_API_KEY", ""),
		},
		Registry: RegistryConfig{
			Host:     getEnv("REGISTRY_DB_HOST", "localhost"),
			Port:     getEnv("REGISTRY_DB_PORT", "5432"),
			User:     getEnv("REGISTRY_DB_USER", "postgres"),
			Password: getEnv("REGISTRY_DB_PASSWORD", ""),
			DBName:   getEnv("REGISTRY_DB_NAME", "nekotab_control"),
			SSLMode:  getEnv("REGISTRY_DB_SSLMODE", "disable"),
		},
		TenantDB: TenantDBConfig{
			Host:          getEnv("TENANT_PG_HOST", "postgres-master"),
			Port:          getEnv("TENANT_PG_PORT", "5432"),
			AdminUser:     getEnv("TENANT_PG_ADMIN_USER", "nekotab_admin"),
			AdminPassword: getEnv("TENANT_PG_ADMIN_PASSWORD", ""),
			SSLMode:       getEnv("TENANT_PG_SSLMODE", "disable"),
		},
		Docker: DockerConfig{
			RegistryURL:    getEnv("DOCKER_REGISTRY_URL", "ghcr.io/nekotab"),
			ImageTag:       getEnv("DOCKER_IMAGE_TAG", "latest"),
			TemplatePath:   getEnv("TENANT_COMPOSE_TEMPLATE", ""),
			DataRoot:       getEnv("TENANT_DATA_ROOT", "/srv/nekotab/tenants"),
			MigrateCommand: getEnv("TENANT_MIGRATE_COMMAND", "python manage.py migrate --noinput"),
			MediaPath:      getEnv("TENANT_MEDIA_PATH", "/app/media"),
		},
		Domain: DomainConfig{
			Base: getEnv("DOMAIN", "nekotab.app"),
			Reserved: getEnvAsStringArray("RESERVED_SUBDOMAINS", []string{
				"www", "admin", "api", "control", "traefik",
				"grafana", "prometheus", "mail", "ftp", "ssh",
				"database", "static", "media", "cdn", "assets",
			}),
		},
		Tenant: TenantDefaults{
			CPULimit:          getEnv("TENANT_CPU_LIMIT", "1.0"),
			MemoryLimit:       getEnv("TENANT_MEMORY_LIMIT", "512M"),
			CPUReservation:    getEnv("TENANT_CPU_RESERVATION", "0.25"),
			MemoryReservation: getEnv("TENANT_MEMORY_RESERVATION", "256M"),
			StorageLimitGB:    getEnvAsInt("TENANT_STORAGE_LIMIT_GB", 10),
		},
		Backup: BackupConfig{
			Dir:           getEnv("BACKUP_DIR", "/srv/nekotab/backups"),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 7),
			Schedule:      getEnv("BACKUP_SCHEDULE", ""),
			S3Bucket:      getEnv("BACKUP_S3_BUCKET", ""),
			S3Region:      getEnv("BACKUP_S3_REGION", "us-east-1"),
			S3Endpoint:    getEnv("BACKUP_S3_ENDPOINT", ""),
			S3AccessKey:   getEnv("BACKUP_S3_ACCESS_KEY", ""),
			S3SecretKey:   getEnv("BACKUP_S3_SECRET_KEY", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "nekotab:queue"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/control-plane.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
			Format:     getEnv("LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsStringArray("CORS_ALLOW_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsStringArray("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowHeaders:     getEnvAsStringArray("CORS_ALLOW_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-API-Key"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 12),
		},
		Secret: SecretConfig{
			Dir:           getEnv("TENANT_SECRET_DIR", "/srv/nekotab/secrets"),
			EncryptionKey: getEnv("REGISTRY_ENCRYPTION_KEY", "nekotab-registry-encryption-k32!"),
			StrictHealth:  getEnvAsBool("PROVISION_STRICT_HEALTH", false),
		},
	}

	return config, nil
}
