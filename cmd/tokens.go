package cmd

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"near-intents/pkg/parser"
)

var (
	filterChain  string
	filterSymbol string
	showBalances bool
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all supported tokens",
	Long: `List all tokens supported by NEAR Intents.

You can filter tokens by blockchain or symbol, and show the balance the signer
account holds in the intents contract.

Examples:
  near-intents list-tokens
  near-intents list-tokens --chain sol
  near-intents list-tokens --symbol USDC --balances`,
	RunE: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by blockchain")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&showBalances, "balances", false, "Show deposited balances of the signer account")
}

func runListTokens(cmd *cobra.Command, args []string) error {
	jsonOut := jsonOutput(cmd)
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sp := newSpinner(jsonOut, "Fetching supported tokens...")
	tokens, err := a.oneClick.GetSupportedTokens(ctx)
	sp.Stop()
	if err != nil {
		return err
	}

	filtered := tokens[:0]
	for _, token := range tokens {
		if filterChain != "" && !strings.EqualFold(token.GetBlockchain(), filterChain) {
			continue
		}
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(token.GetSymbol()), strings.ToUpper(filterSymbol)) {
			continue
		}
		filtered = append(filtered, token)
	}

	var balances map[string]*big.Int
	if showBalances && len(filtered) > 0 {
		if err := a.needSigner(); err != nil {
			return err
		}
		ids := make([]string, len(filtered))
		for i, t := range filtered {
			ids[i] = t.GetAssetId()
		}
		if balances, err = a.near.DepositedBalances(ctx, a.userID(), ids); err != nil {
			return err
		}
	}

	if jsonOut {
		return printJSON(filtered)
	}
	displayTokens(filtered, balances)
	return nil
}

func displayTokens(tokens []oneclick.TokenResponse, balances map[string]*big.Int) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	tokensByChain := make(map[string][]oneclick.TokenResponse)
	for _, token := range tokens {
		chain := token.GetBlockchain()
		tokensByChain[chain] = append(tokensByChain[chain], token)
	}

	chains := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	for _, chain := range chains {
		color.Cyan("\n%s", strings.ToUpper(chain))
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[chain] {
			address := token.GetContractAddress()
			if len(address) > 40 {
				address = address[:37] + "..."
			}

			line := fmt.Sprintf("  %-10s  %2.0f decimals  %s",
				color.YellowString(token.GetSymbol()),
				token.GetDecimals(),
				color.HiBlackString(address))
			if balances != nil {
				held := parser.FormatAmount(balances[token.GetAssetId()], int32(token.GetDecimals()))
				line += "  " + color.GreenString(held)
			}
			fmt.Println(line)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d blockchains\n\n", len(tokens), len(chains))
}
