package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var updateTag string

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "把目标镜像滚动推送到所有租户栈（串行，带健康门控和回滚）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.teardown()

		summary, err := rt.updater.UpdateAll(context.Background(), updateTag)
		if err != nil {
			return err
		}

		fmt.Printf("全量更新结束\n")
		fmt.Printf("  image:   %s\n", summary.Image)
		fmt.Printf("  updated: %d\n", summary.Updated)
		fmt.Printf("  failed:  %d\n", summary.Failed)

		if summary.Failed > 0 {
			return fmt.Errorf("以下租户更新失败（已各自回滚）: %s",
				strings.Join(summary.FailedTenants, ", "))
		}
		return nil
	},
}

func init() {
	updateAllCmd.Flags().StringVar(&updateTag, "tag", "", "目标镜像标签，默认取DOCKER_IMAGE_TAG")
}
