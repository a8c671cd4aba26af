package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/database"

	"github.com/spf13/cobra"
)

var (
	unmatchedNetwork string
	unmatchedLimit   int
	unmatchedJSON    bool
)

var unmatchedCmd = &cobra.Command{
	Use:   "unmatched",
	Short: "列出没有归属用户的入账，供人工对账",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		db, err := connectDB()
		if err != nil {
			return err
		}
		defer database.Close(db)

		deps, err := store.NewDepositStore(db).ListUnmatched(ctx, model.Network(unmatchedNetwork), unmatchedLimit)
		if err != nil {
			return err
		}
		return printDeposits(deps, unmatchedJSON)
	},
}

func printDeposits(deps []model.DepositTransaction, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deps)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNETWORK\tTX_HASH\tAMOUNT\tBLOCK\tCONF\tSTATUS\tTO")
	for _, d := range deps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			d.ID, d.Network, d.TxHash, d.Amount.String(), d.BlockNumber, d.Confirmations, d.Status, d.ToAddress)
	}
	return w.Flush()
}

func init() {
	unmatchedCmd.Flags().StringVar(&unmatchedNetwork, "network", "", "网络过滤 (TRC20 或 BEP20)，默认全部")
	unmatchedCmd.Flags().IntVar(&unmatchedLimit, "limit", 100, "最多返回条数")
	unmatchedCmd.Flags().BoolVar(&unmatchedJSON, "json", false, "输出 JSON")
	rootCmd.AddCommand(unmatchedCmd)
}
