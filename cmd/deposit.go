package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"near-intents/pkg/orchestrator"
	"near-intents/pkg/parser"
)

var (
	depositChain string
	depositToken string
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> <token> --chain <chain>",
	Short: "Fund the intents account from an external chain",
	Long: `Send tokens from a configured origin-chain wallet to your POA deposit
address and wait until the bridge credits them to the intents account.

Origin-chain wallets are configured under auto_deposit in .near-intents.yaml.

Examples:
  near-intents deposit 0.1 ETH --chain eth
  near-intents deposit 25 USDC --chain base --token-contract 0x8335...
  near-intents deposit 1 SOL --chain sol`,
	Args: cobra.ExactArgs(2),
	RunE: runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().StringVar(&depositChain, "chain", "", "Origin blockchain (REQUIRED)")
	depositCmd.Flags().StringVar(&depositToken, "token-contract", "", "Origin-chain token contract or mint (empty for the native coin)")
	depositCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	_ = depositCmd.MarkFlagRequired("chain")
}

func runDeposit(cmd *cobra.Command, args []string) error {
	jsonOut := jsonOutput(cmd)
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.needTokens(ctx); err != nil {
		return err
	}
	token, err := a.resolveToken(parser.NormalizeTokenSymbol(args[1]), normalizeChain(depositChain))
	if err != nil {
		return err
	}
	amount := parser.ParseAmount(args[0], token.Decimals)
	if amount == nil {
		return fmt.Errorf("invalid amount %q for %s", args[0], token.Symbol)
	}
	s, err := a.startSession(ctx, []string{token.AssetID})
	if err != nil {
		return err
	}
	chain := a.poaChain(depositChain)
	if !a.deposits.IsEnabledForChain(chain) {
		return fmt.Errorf("no deposit wallet configured for chain %s (configured: %s)",
			depositChain, strings.Join(a.deposits.GetSupportedChains(), ", "))
	}

	if !noConfirm && !jsonOut && !confirm(fmt.Sprintf("Deposit %s %s from %s?", args[0], token.Symbol, chain)) {
		fmt.Println("\nDeposit cancelled.")
		return nil
	}

	sp := newSpinner(jsonOut, "Sending deposit...")
	sub, err := s.o.Deposit(ctx, orchestrator.DepositRequest{
		Chain:   chain,
		AssetID: token.AssetID,
		Token:   depositToken,
		Amount:  amount,
	})
	sp.Stop()
	if err != nil {
		return err
	}
	if !jsonOut {
		color.Green("\n✓ Deposit sent")
		fmt.Printf("  Transaction ID: %s\n", color.CyanString(sub.Handle.Value))
	}

	status, err := follow(ctx, s.notes, jsonOut)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(status)
	}
	printSuccess(color.GreenString("✓ %s %s credited to %s", args[0], token.Symbol, a.userID()))
	return nil
}
