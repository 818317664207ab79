package main

import (
	"context"
	"fmt"
	"os"

	"nekotab/internal/services"

	"github.com/spf13/cobra"
)

var (
	cleanupForce      bool
	cleanupSkipBackup bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <subdomain>",
	Short: "永久删除一个租户（先备份，需逐字确认子域名）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.teardown()

		opts := &services.DecommissionOptions{
			Force:      cleanupForce,
			SkipBackup: cleanupSkipBackup,
			Confirm:    os.Stdin,
		}
		if err := rt.decommission.Decommission(context.Background(), args[0], opts); err != nil {
			return err
		}

		fmt.Printf("租户 %s 已下线\n", args[0])
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "跳过交互确认")
	cleanupCmd.Flags().BoolVar(&cleanupSkipBackup, "skip-backup", false, "跳过下线前备份（仅限备份目标不可用时）")
}
