package handlers

import (
	"time"

	"nekotab/internal/database"
	"nekotab/pkg/response"

	"github.com/gin-gonic/gin"
)

var startedAt = time.Now()

// Health 存活探针，不依赖任何下游
func Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	})
}

// Ready 就绪探针：注册库和Redis任一不可达则未就绪
func Ready(c *gin.Context) {
	checks := gin.H{"database": "ok", "redis": "ok"}
	ready := true

	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			checks["database"] = "unreachable"
			ready = false
		}
	} else {
		checks["database"] = "uninitialized"
		ready = false
	}

	if err := database.GetRedisQueue().Ping(); err != nil {
		checks["redis"] = "unreachable"
		ready = false
	}

	if !ready {
		response.ServerError(c, "依赖未就绪")
		return
	}
	response.Success(c, checks)
}
