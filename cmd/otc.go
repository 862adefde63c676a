package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"near-intents/pkg/intent"
	"near-intents/pkg/otc"
	"near-intents/pkg/parser"
)

var (
	dealMemo   string
	dealExpiry time.Duration
)

var otcCmd = &cobra.Command{
	Use:   "otc",
	Short: "Create, fill and cancel peer-to-peer deals and gifts",
	Long: `OTC deals are maker-signed token diffs shared as an encrypted link. The taker
signs the opposite diff and both are published together. Gifts only give.

Examples:
  near-intents otc create 100 USDC for 0.05 ETH
  near-intents otc gift 5 USDC --memo "happy birthday"
  near-intents otc show <share>
  near-intents otc fill <share>
  near-intents otc cancel <trade-id>
  near-intents otc list`,
}

var otcCreateCmd = &cobra.Command{
	Use:   "create <amount> <token> for <amount> <token>",
	Short: "Offer tokens in exchange for other tokens",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.EqualFold(args[2], "for") {
			return fmt.Errorf("invalid deal format. Expected: 'otc create <amount> <token> for <amount> <token>'")
		}
		return runCreateDeal(cmd, args[0], args[1], args[3], args[4])
	},
}

var otcGiftCmd = &cobra.Command{
	Use:   "gift <amount> <token>",
	Short: "Create a gift link anyone can claim",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateDeal(cmd, args[0], args[1], "", "")
	},
}

var otcShowCmd = &cobra.Command{
	Use:   "show <share>",
	Short: "Decrypt a share and show what it offers",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowDeal,
}

var otcFillCmd = &cobra.Command{
	Use:   "fill <share>",
	Short: "Complete a deal or claim a gift",
	Args:  cobra.ExactArgs(1),
	RunE:  runFillDeal,
}

var otcCancelCmd = &cobra.Command{
	Use:   "cancel <trade-id>",
	Short: "Invalidate an open deal you created",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancelDeal,
}

var otcListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals and gifts you created or filled",
	Args:  cobra.NoArgs,
	RunE:  runListDeals,
}

func init() {
	rootCmd.AddCommand(otcCmd)
	otcCmd.AddCommand(otcCreateCmd, otcGiftCmd, otcShowCmd, otcFillCmd, otcCancelCmd, otcListCmd)

	otcCreateCmd.Flags().StringVar(&dealMemo, "memo", "", "Memo stored in the signed diff")
	otcGiftCmd.Flags().StringVar(&dealMemo, "memo", "", "Memo stored in the signed diff")
	otcCreateCmd.Flags().DurationVar(&dealExpiry, "expires", 0, "How long the link stays fillable (default deal_ttl)")
	otcGiftCmd.Flags().DurationVar(&dealExpiry, "expires", 0, "How long the link stays fillable (default deal_ttl)")
	otcFillCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

// newDesk sets up everything a deal command needs.
func newDesk(ctx context.Context, a *app) (*otc.Desk, error) {
	if err := a.needSigner(); err != nil {
		return nil, err
	}
	if err := a.needRelay(ctx); err != nil {
		return nil, err
	}
	if err := a.needHistory(ctx); err != nil {
		return nil, err
	}
	return otc.NewDesk(a.history, a.relay, a.near, otc.WithDealTTL(a.cfg.DealTTL)), nil
}

func encodeShare(s otc.Share) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeShare(text string) (otc.Share, error) {
	var s otc.Share
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return s, fmt.Errorf("invalid share: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("invalid share: %w", err)
	}
	return s, nil
}

func (a *app) parseTokenAmount(amount, symbol string) (intent.Token, *big.Int, error) {
	t, err := a.resolveToken(parser.NormalizeTokenSymbol(symbol), "")
	if err != nil {
		return intent.Token{}, nil, err
	}
	v := parser.ParseAmount(amount, t.Decimals)
	if v == nil {
		return intent.Token{}, nil, fmt.Errorf("invalid amount %q for %s", amount, t.Symbol)
	}
	return t, v, nil
}

func runCreateDeal(cmd *cobra.Command, amountIn, tokenIn, amountOut, tokenOut string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	desk, err := newDesk(ctx, a)
	if err != nil {
		return err
	}
	if err := a.needTokens(ctx); err != nil {
		return err
	}

	give, giveAmount, err := a.parseTokenAmount(amountIn, tokenIn)
	if err != nil {
		return err
	}
	offer := otc.Offer{TokenIn: give.AssetID, AmountIn: giveAmount, Memo: dealMemo, Expiry: dealExpiry}
	if tokenOut != "" {
		want, wantAmount, err := a.parseTokenAmount(amountOut, tokenOut)
		if err != nil {
			return err
		}
		offer.TokenOut, offer.AmountOut = want.AssetID, wantAmount
	}

	share, err := desk.Create(ctx, a.signer, a.userID(), offer)
	if err != nil {
		return bannerError(err, jsonOutput(cmd))
	}
	link, err := encodeShare(share)
	if err != nil {
		return err
	}

	if jsonOutput(cmd) {
		return printJSON(map[string]string{"trade_id": share.TradeID, "share": link})
	}
	color.Green("\n✓ Deal created")
	fmt.Printf("  Trade ID: %s\n", color.CyanString(share.TradeID))
	fmt.Printf("\nShare this with the counterparty:\n\n  %s\n\n", link)
	return nil
}

func runShowDeal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	share, err := decodeShare(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	deal, err := otc.NewDesk(nil, nil, nil).Open(share)
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(deal)
	}
	if err := a.needTokens(ctx); err != nil {
		return err
	}
	displayDeal(a, deal)
	return nil
}

func displayDeal(a *app, deal otc.Deal) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      %s", strings.ToUpper(string(deal.Kind)))
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Trade ID:  %s\n", deal.TradeID)
	fmt.Printf("  Maker:     %s\n", color.CyanString(deal.Maker))
	if !deal.Deadline.IsZero() {
		fmt.Printf("  Expires:   %s\n", deal.Deadline.Local().Format("2006-01-02 15:04"))
	}
	// The maker's negative side is what the taker receives.
	for asset, amount := range deal.Diff {
		t := a.tokens[asset]
		label := "  You pay:   "
		if amount.Sign() < 0 {
			label = "  You get:   "
		}
		fmt.Printf("%s%s %s\n", label, parser.FormatAmount(new(big.Int).Abs(amount), t.Decimals), color.YellowString(t.Symbol))
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func runFillDeal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOut := jsonOutput(cmd)
	share, err := decodeShare(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	desk, err := newDesk(ctx, a)
	if err != nil {
		return err
	}
	deal, err := desk.Open(share)
	if err != nil {
		return err
	}
	if !jsonOut {
		if err := a.needTokens(ctx); err == nil {
			displayDeal(a, deal)
		}
		if !noConfirm && !confirm("Fill this deal?") {
			fmt.Println("\nCancelled.")
			return nil
		}
	}

	sp := newSpinner(jsonOut, "Filling deal...")
	hashes, err := desk.Fill(ctx, a.signer, a.userID(), share)
	sp.Stop()
	if err != nil {
		return bannerError(err, jsonOut)
	}
	if jsonOut {
		return printJSON(map[string]any{"trade_id": share.TradeID, "intent_hashes": hashes})
	}
	color.Green("\n✓ Deal filled")
	for _, h := range hashes {
		fmt.Printf("  Intent: %s\n", color.CyanString(h))
	}
	if len(hashes) > 0 {
		fmt.Printf("\nTrack settlement with: near-intents status %s --watch\n\n", hashes[len(hashes)-1])
	}
	return nil
}

func runCancelDeal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	desk, err := newDesk(ctx, a)
	if err != nil {
		return err
	}
	if err := desk.Cancel(ctx, a.signer, a.userID(), args[0]); err != nil {
		return bannerError(err, jsonOutput(cmd))
	}
	printSuccess(color.GreenString("✓ Deal %s cancelled", args[0]))
	return nil
}

func runListDeals(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	desk, err := newDesk(ctx, a)
	if err != nil {
		return err
	}
	records, err := desk.List(ctx, a.userID())
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("\nNo deals yet.")
		return nil
	}

	fmt.Println()
	for _, rec := range records {
		status := color.YellowString(rec.Status)
		switch rec.Status {
		case otc.StatusFilled:
			status = color.GreenString(rec.Status)
		case otc.StatusCancelled:
			status = color.HiBlackString(rec.Status)
		}
		fmt.Printf("  %-36s  %-5s  %-10s  %s\n", rec.TradeID, rec.Kind, status, rec.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}
