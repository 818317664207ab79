package database

import (
	"nekotab/internal/models"
	"nekotab/pkg/logger"
)

// Migrate 执行注册库迁移
func Migrate() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting registry migration...")

	err := DB.AutoMigrate(
		&models.Tenant{},
		&models.ProvisioningLog{},
		&models.APIKey{},
	)

	if err != nil {
		appLogger.Errorf("Registry migration failed: %v", err)
		return err
	}

	appLogger.Info("Registry migration completed successfully")
	return nil
}
