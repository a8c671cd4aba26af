package cmd

import (
	"fmt"
	"os"

	"deposit-reconciler/pkg/config"
	"deposit-reconciler/pkg/logger"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时打印帮助
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "TRC20/BEP20 充值对账服务",
	Long: `扫描主钱包的链上 USDT 转入，匹配用户充值意向，
达到确认数后给用户入账，每笔交易只入账一次。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env, logger.FileOptions{
			File:       config.Global.Log.File,
			MaxSizeMB:  config.Global.Log.MaxSizeMB,
			MaxBackups: config.Global.Log.MaxBackups,
			MaxAgeDays: config.Global.Log.MaxAgeDays,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute 将所有子命令添加到根命令并执行
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
