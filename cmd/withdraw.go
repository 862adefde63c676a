package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"near-intents/pkg/parser"
)

var withdrawChain string

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <amount> <token> to <address> [on <chain>]",
	Short: "Withdraw tokens from the intents account to an external address",
	Long: `Withdraw tokens held in the intents account. Bridged tokens are released by
the POA bridge on their origin chain and tracked until the destination
transaction is confirmed.

Examples:
  near-intents withdraw 10 USDC to alice.near
  near-intents withdraw 0.1 ETH to 0xabc... on eth
  near-intents withdraw 5 SOL to 7xKX... --chain sol`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWithdraw,
}

func init() {
	rootCmd.AddCommand(withdrawCmd)

	withdrawCmd.Flags().StringVar(&withdrawChain, "chain", "", "Destination blockchain (overrides 'on <chain>')")
	withdrawCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	req, err := parser.ParseWithdrawCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if withdrawChain != "" {
		req.DestChain = normalizeChain(withdrawChain)
	}
	req.SourceChain = req.DestChain
	return runOperation(cmd, req)
}
