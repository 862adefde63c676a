package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"near-intents/pkg/intent"
	"near-intents/pkg/orchestrator"
	"near-intents/pkg/tracker"
	"near-intents/pkg/types"
	"near-intents/pkg/view"
)

const quoteWait = 30 * time.Second

func newSpinner(quiet bool, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	if !quiet {
		s.Start()
	}
	return s
}

func setSuffix(s *spinner.Spinner, suffix string) {
	s.Lock()
	s.Suffix = " " + suffix
	s.Unlock()
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func rule(width int) string {
	return strings.Repeat("=", width)
}

func printBanner(b *types.ErrorBanner) {
	if b == nil {
		return
	}
	color.Red("\n%s (%s)", b.Title, b.Code)
	if b.Remediation != "" {
		fmt.Printf("  %s\n", b.Remediation)
	}
}

// bannerError prints the banner for err and returns it for the command.
func bannerError(err error, jsonOut bool) error {
	coded := intent.AsError(err)
	if coded == nil {
		return nil
	}
	if !jsonOut {
		printBanner(view.ErrorBanner(coded))
	}
	return coded
}

// waitForQuote blocks until the orchestrator holds a quote or a quote error
// for its current request.
func waitForQuote(ctx context.Context, o *orchestrator.Orchestrator, quiet bool) (orchestrator.Snapshot, error) {
	sp := newSpinner(quiet, "Fetching quote...")
	defer sp.Stop()

	ctx, cancel := context.WithTimeout(ctx, quoteWait)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := o.Snapshot()
		if !snap.Quote.IsZero() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return snap, intent.NewError(intent.CodeNoQuotes, "no quote within "+quoteWait.String())
			}
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func displayQuote(d types.QuoteDisplay, req *types.OperationRequest) {
	fmt.Println("\n" + rule(60))
	color.Green("                        QUOTE")
	fmt.Println(rule(60))

	fmt.Printf("\n  From:              %s %s\n", d.SourceAmount, color.YellowString(d.SourceToken))
	fmt.Printf("  To:                ~%s %s\n", d.DestAmount, color.YellowString(d.DestToken))
	fmt.Printf("  Rate:              %s\n", d.Rate)
	if d.ExpiresIn != "" {
		fmt.Printf("  Expires In:        %s\n", d.ExpiresIn)
	}
	if d.DepositAddress != "" {
		fmt.Printf("  Deposit Address:   %s\n", color.CyanString(d.DepositAddress))
	}
	fmt.Printf("  Source:            %s\n", d.Source)
	if req.RecipientAddr != "" {
		fmt.Printf("  Recipient:         %s\n", color.CyanString(req.RecipientAddr))
	}
	if req.DestChain != "" {
		fmt.Printf("  Destination Chain: %s\n", req.DestChain)
	}

	fmt.Println("\n" + rule(60) + "\n")
}

func displayTracker(s types.SwapStatus) {
	fmt.Printf("  %-14s %s\n", coloredState(s), s.Handle)
	if s.TxHash != "" {
		fmt.Printf("  NEAR Tx:        %s\n", color.HiBlackString(s.TxHash))
	}
	if s.DestinationTxHash != "" {
		fmt.Printf("  Withdrawal Tx:  %s\n", color.HiBlackString(s.DestinationTxHash))
	}
}

func coloredState(s types.SwapStatus) string {
	switch tracker.State(s.State) {
	case tracker.StateSuccess, tracker.StateSettled:
		return color.GreenString(s.Label)
	case tracker.StateError, tracker.StateNotValid:
		return color.RedString(s.Label)
	default:
		return color.YellowString(s.Label)
	}
}

// follow prints notifications until the submission settles or fails.
func follow(ctx context.Context, notes <-chan orchestrator.Notification, jsonOut bool) (types.SwapStatus, error) {
	sp := newSpinner(jsonOut, "Submitting...")
	defer sp.Stop()

	var last types.SwapStatus
	for {
		var n orchestrator.Notification
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case n = <-notes:
		}

		switch n.Kind {
		case orchestrator.NotifySubmitFailed:
			sp.Stop()
			return last, bannerError(n.Err, jsonOut)
		case orchestrator.NotifyPublished:
			last.Handle = n.Submission.Handle.String()
			setSuffix(sp, "Published "+last.Handle)
		case orchestrator.NotifyTrackerUpdated:
			last = view.TrackerStatus(*n.Tracker)
			setSuffix(sp, last.Label)
			switch tracker.State(last.State) {
			case tracker.StateNotValid:
				sp.Stop()
				return last, fmt.Errorf("%s was rejected", last.Handle)
			case tracker.StateError:
				sp.Stop()
				if n.Tracker.Err != nil {
					_ = bannerError(n.Tracker.Err, jsonOut)
				}
				return last, fmt.Errorf("tracking %s stopped; check it later with: near-intents status %s", last.Handle, n.Tracker.Handle.Value)
			}
		case orchestrator.NotifySettled, orchestrator.NotifyOneClickSettled:
			last.Final = true
			last.TxHash = n.Event.TxHash
			last.DestinationTxHash = n.Event.DestinationTxHash
			last.State = string(tracker.StateSuccess)
			last.Label = "completed"
			return last, nil
		}
	}
}
