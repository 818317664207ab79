package middleware

import (
	"nekotab/pkg/logger"
	"nekotab/pkg/response"

	"github.com/gin-gonic/gin"
)

// ErrorHandler 兜底panic恢复，保证生命周期接口始终返回统一响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				appLogger := logger.GetLogger()
				appLogger.Errorf("Panic recovered: %v", err)
				response.ServerError(c, "服务器内部错误")
				c.Abort()
			}
		}()

		c.Next()
	}
}
