package cmd

import (
	"context"
	"encoding/json"
	"os"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var onceNetwork string

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "执行一轮对账并输出 JSON 报告",
	Example: `  reconciler once
  reconciler once --network BEP20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		rt, err := buildRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if onceNetwork != "" {
			rep, err := rt.engine.ProcessNetwork(ctx, model.Network(onceNetwork))
			if err != nil {
				return err
			}
			return enc.Encode(rep)
		}

		report, err := rt.engine.ProcessCycle(ctx)
		if err != nil {
			logger.Error("对账周期无法执行", zap.Error(err))
			return err
		}
		return enc.Encode(report)
	},
}

func init() {
	onceCmd.Flags().StringVar(&onceNetwork, "network", "", "只处理一个网络 (TRC20 或 BEP20)")
	rootCmd.AddCommand(onceCmd)
}
