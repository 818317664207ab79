package main

import (
	"context"
	"fmt"

	"nekotab/pkg/logger"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <subdomain>",
	Short: "为租户产出一次时点备份",
	Args:  cobra.ExactArgs(1),
	// 备份供cron调用，任何失败都已记录日志，退出码恒为0，
	// 避免一个租户出错中断整批计划任务
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			logger.GetLogger().Errorf("备份环境装配失败: %v", err)
			return nil
		}
		defer rt.teardown()

		result, err := rt.backup.Backup(context.Background(), args[0])
		if err != nil {
			logger.GetLogger().Errorf("备份失败 subdomain=%s: %v", args[0], err)
			return nil
		}

		fmt.Printf("备份完成\n")
		fmt.Printf("  db:       %s\n", result.DBDump)
		if result.MediaArchive != "" {
			fmt.Printf("  media:    %s\n", result.MediaArchive)
		}
		fmt.Printf("  uploaded: %v\n", result.Uploaded)
		fmt.Printf("  pruned:   %d\n", result.Pruned)
		return nil
	},
}
