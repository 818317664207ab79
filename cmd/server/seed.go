package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"nekotab/internal/database"
	"nekotab/internal/models"
	"nekotab/pkg/config"
	"nekotab/pkg/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// seedData 初始化种子数据
func seedData() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	db := database.GetDB()

	if err := createBootstrapAPIKey(db); err != nil {
		return fmt.Errorf("创建引导API密钥失败: %v", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

// createBootstrapAPIKey 首次启动且未配置静态密钥时生成一把引导密钥。
// 明文只在日志里出现这一次，之后只存bcrypt哈希。
func createBootstrapAPIKey(db *gorm.DB) error {
	appLogger := logger.GetLogger()

	if config.GetConfig().Server.APIKey != "" {
		appLogger.Info("已配置静态API密钥，跳过引导密钥生成")
		return nil
	}

	var count int64
	db.Model(&models.APIKey{}).Count(&count)
	if count > 0 {
		appLogger.Info("api_keys表已有记录，跳过引导密钥生成")
		return nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	plaintext := "ntk_" + base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	record := &models.APIKey{
		Name:     "bootstrap",
		KeyHash:  string(hash),
		IsActive: true,
	}
	if err := db.Create(record).Error; err != nil {
		return err
	}

	appLogger.Warnf("已生成引导API密钥（仅本次显示）: %s", plaintext)
	return nil
}
