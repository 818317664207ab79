package middleware

import (
	"crypto/subtle"

	"nekotab/internal/models"
	"nekotab/pkg/config"
	"nekotab/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthMiddleware 管理API认证中间件。控制面是纯机器对机器接口，
// 认证方式为X-API-Key：优先匹配环境变量静态密钥，
// 否则回退到api_keys表的bcrypt校验。
type AuthMiddleware struct {
	db *gorm.DB
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{db: db}
}

// RequireAPIKey 要求请求携带有效的X-API-Key
func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			response.Unauthorized(c, "缺少X-API-Key")
			c.Abort()
			return
		}

		// 静态密钥：常数时间比较，避免时序侧信道
		staticKey := config.GetConfig().Server.APIKey
		if staticKey != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(staticKey)) == 1 {
			c.Set("api_key_name", "static")
			c.Next()
			return
		}

		// 回退到api_keys表
		name, ok := m.lookupKey(key)
		if !ok {
			response.Unauthorized(c, "无效的API密钥")
			c.Abort()
			return
		}

		c.Set("api_key_name", name)
		c.Next()
	}
}

// lookupKey 在api_keys表中校验密钥，返回密钥名称
func (m *AuthMiddleware) lookupKey(key string) (string, bool) {
	if m.db == nil {
		return "", false
	}

	var keys []models.APIKey
	if err := m.db.Where("is_active = ?", true).Find(&keys).Error; err != nil {
		return "", false
	}

	for _, record := range keys {
		if bcrypt.CompareHashAndPassword([]byte(record.KeyHash), []byte(key)) == nil {
			return record.Name, true
		}
	}
	return "", false
}
