package main

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/congo-pay/remittance/internal/wallet"
)

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "list fees recorded but not yet collected",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(store wallet.Store) error {
			record, err := store.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, outstandingFees(record))
		})
	},
}

func init() {
	rootCmd.AddCommand(feesCmd)
}

type feeView struct {
	ContributionID string          `json:"contribution_id"`
	Amount         decimal.Decimal `json:"amount"`
}

type feesView struct {
	Fees  []feeView       `json:"fees"`
	Total decimal.Decimal `json:"total"`
}

func outstandingFees(r *wallet.Record) feesView {
	view := feesView{Fees: make([]feeView, 0, len(r.Fees)), Total: decimal.Zero}
	for id, amount := range r.Fees {
		view.Fees = append(view.Fees, feeView{ContributionID: id, Amount: amount})
		view.Total = view.Total.Add(amount)
	}
	sort.Slice(view.Fees, func(i, j int) bool { return view.Fees[i].ContributionID < view.Fees[j].ContributionID })
	return view
}
