package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "near-intents",
	Short: "A wallet CLI for NEAR Intents swaps, withdrawals, deposits and OTC deals",
	Long: `near-intents signs and publishes NEAR Intents from the terminal. Quotes are
refreshed while you decide, signatures are verified before anything is published
and every operation is tracked until it settles.

Examples:
  near-intents swap 1 USDC to ETH
  near-intents withdraw 10 USDC to 0xabc... on eth
  near-intents deposit 0.1 ETH --chain eth
  near-intents otc create 100 USDC for 0.05 ETH
  near-intents status <intent-hash>
  near-intents list-tokens`,
	Version:       "0.2.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
