package main

import (
	"context"
	"fmt"

	"nekotab/internal/services"

	"github.com/spf13/cobra"
)

var (
	provisionName  string
	provisionEmail string
	provisionPlan  string
)

var provisionCmd = &cobra.Command{
	Use:   "provision <subdomain>",
	Short: "开通一个新租户（或对已有子域名幂等重跑）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.teardown()

		tenant, err := rt.provisioner.Provision(context.Background(), &services.ProvisionRequest{
			Subdomain:  args[0],
			Name:       provisionName,
			OwnerEmail: provisionEmail,
			Plan:       provisionPlan,
		})
		if err != nil {
			return err
		}

		fmt.Printf("租户已开通\n")
		fmt.Printf("  tenant_id: %s\n", tenant.ID)
		fmt.Printf("  subdomain: %s.%s\n", tenant.Subdomain, rt.cfg.Domain.Base)
		fmt.Printf("  status:    %s\n", tenant.Status)
		return nil
	},
}

func init() {
	provisionCmd.Flags().StringVar(&provisionName, "name", "", "租户显示名称，默认与子域名相同")
	provisionCmd.Flags().StringVar(&provisionEmail, "email", "", "租户负责人邮箱")
	provisionCmd.Flags().StringVar(&provisionPlan, "plan", "free", "租户套餐")
}
