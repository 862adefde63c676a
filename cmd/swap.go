package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"near-intents/pkg/intent"
	"near-intents/pkg/orchestrator"
	"near-intents/pkg/parser"
	"near-intents/pkg/types"
	"near-intents/pkg/view"
)

var (
	fromChain string
	toChain   string
	noConfirm bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Swap tokens held in the intents account",
	Long: `Swap tokens inside the NEAR Intents account. The quote is refreshed until you
confirm, then the diff is signed, published and tracked until it settles.

With swap_mode=one_click the swap goes through 1Click: the wallet transfers the
input to a 1Click deposit address and the swap is tracked by that address.

Examples:
  near-intents swap 1 USDC to ETH
  near-intents swap 0.5 ETH to USDC --from-chain eth
  near-intents swap 100 USDC to SOL --to-chain sol --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&fromChain, "from-chain", "", "Blockchain of the source token (optional)")
	swapCmd.Flags().StringVar(&toChain, "to-chain", "", "Blockchain of the destination token (optional)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) error {
	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}
	req.SourceChain = normalizeChain(fromChain)
	req.DestChain = normalizeChain(toChain)
	return runOperation(cmd, req)
}

// runOperation drives one swap or withdrawal through an orchestrator session.
func runOperation(cmd *cobra.Command, req *types.OperationRequest) error {
	if err := parser.ValidateOperationRequest(req); err != nil {
		return err
	}
	jsonOut := jsonOutput(cmd)
	verbose, _ := cmd.Flags().GetBool("verbose")
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sp := newSpinner(jsonOut, "Loading tokens...")
	err = a.needTokens(ctx)
	sp.Stop()
	if err != nil {
		return err
	}
	in, err := a.resolveToken(req.SourceToken, req.SourceChain)
	if err != nil {
		return err
	}
	out := in
	if req.Kind != intent.KindWithdraw {
		if out, err = a.resolveToken(req.DestToken, req.DestChain); err != nil {
			return err
		}
	}
	if verbose {
		fmt.Printf("\nDebug: %s -> %s\n", in.AssetID, out.AssetID)
	}

	s, err := a.startSession(ctx, []string{in.AssetID, out.AssetID})
	if err != nil {
		return err
	}

	kind := req.Kind
	bridgeChain := a.poaChain(req.DestChain)
	s.o.Input(orchestrator.FormPatch{
		Kind:      &kind,
		TokenIn:   &in.AssetID,
		TokenOut:  &out.AssetID,
		Amount:    &req.Amount,
		Recipient: &req.RecipientAddr,
		DestChain: &bridgeChain,
	})

	snap, err := waitForQuote(ctx, s.o, jsonOut)
	if err != nil {
		return bannerError(err, jsonOut)
	}
	if snap.Quote.IsErr() {
		return bannerError(snap.Quote.Error(), jsonOut)
	}

	display, _ := view.QuoteView(snap.Quote, a.tokens, time.Now())
	if jsonOut {
		_ = printJSON(display)
	} else {
		displayQuote(display, req)
	}

	button := view.SubmitButton(snap, time.Now())
	if !button.Enabled {
		return fmt.Errorf("cannot %s: %s", strings.ToLower(button.Label), button.Reason)
	}
	if !noConfirm && !jsonOut && !confirm(fmt.Sprintf("Proceed with %s?", strings.ToLower(button.Label))) {
		fmt.Println("\nCancelled.")
		return nil
	}

	if !s.o.Submit(ctx) {
		button = view.SubmitButton(s.o.Snapshot(), time.Now())
		return fmt.Errorf("submission not accepted: %s", button.Reason)
	}

	status, err := follow(ctx, s.notes, jsonOut)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(status)
	}
	printSuccess(color.GreenString("✓ %s %s", button.Label, status.Label))
	displayTracker(status)
	return nil
}
