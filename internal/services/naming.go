package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"

	"nekotab/pkg/errors"
)

// 栈和服务命名约定：栈名tenant-<id>，web/worker为栈内服务名
const (
	stackPrefix         = "tenant-"
	webServiceSuffix    = "_web"
	workerServiceSuffix = "_worker"
)

// 子域名格式：4-32位小写字母数字加连字符，首尾不能是连字符
var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,30}[a-z0-9]$`)

// DeriveTenantID 从子域名派生12位租户ID。
// 同一子域名永远得到同一ID，ID用于命名数据库、栈和卷。
func DeriveTenantID(subdomain string) string {
	sum := sha256.Sum256([]byte(subdomain))
	return hex.EncodeToString(sum[:])[:12]
}

// StackName 租户栈名
func StackName(tenantID string) string {
	return stackPrefix + tenantID
}

// WebServiceName 应用服务名
func WebServiceName(tenantID string) string {
	return StackName(tenantID) + webServiceSuffix
}

// WorkerServiceName 后台任务服务名
func WorkerServiceName(tenantID string) string {
	return StackName(tenantID) + workerServiceSuffix
}

// TenantDBName 租户数据库名
func TenantDBName(tenantID string) string {
	return "nekotab_" + tenantID
}

// TenantDBUser 租户数据库角色名
func TenantDBUser(tenantID string) string {
	return "tenant_" + tenantID
}

// ValidateSubdomain 校验子域名格式和保留名单，失败返回ValidationError，
// 发生在任何副作用之前
func ValidateSubdomain(subdomain string, reserved []string) error {
	if !subdomainPattern.MatchString(subdomain) {
		return errors.NewValidationError(subdomain,
			"必须为4-32位小写字母、数字或连字符，且首尾为字母或数字")
	}

	for _, r := range reserved {
		if subdomain == r {
			return errors.NewValidationError(subdomain, "该子域名为平台保留名")
		}
	}

	return nil
}

// generateToken 生成URL安全的随机令牌，nBytes为熵字节数
func generateToken(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机令牌失败: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
