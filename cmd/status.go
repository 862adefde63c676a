package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"near-intents/pkg/intent"
	"near-intents/pkg/tracker"
)

var (
	watchStatus    bool
	watchInterval  int
	statusOneClick bool
)

var statusCmd = &cobra.Command{
	Use:   "status <intent-hash | deposit-address>",
	Short: "Check the settlement status of an intent or a 1Click swap",
	Long: `Check the settlement status of a published intent on the solver relay, or of
a 1Click swap by its deposit address.

Examples:
  near-intents status 9x3f...
  near-intents status 9x3f... --watch
  near-intents status 0x1234...abcd --one-click --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until final")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
	statusCmd.Flags().BoolVar(&statusOneClick, "one-click", false, "Treat the argument as a 1Click deposit address")
}

type statusCheck struct {
	handle   intent.Handle
	source   tracker.StatusSource
	classify tracker.Classifier
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOut := jsonOutput(cmd)
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	check := statusCheck{
		handle:   intent.Handle{Kind: intent.HandleIntentHash, Value: args[0]},
		classify: tracker.ClassifyIntentStatus,
	}
	if statusOneClick {
		if err := a.cfg.RequireOneClick(); err != nil {
			return err
		}
		check.handle.Kind = intent.HandleDepositAddress
		check.source, check.classify = a.oneClick, tracker.ClassifyOneClickStatus
	} else {
		if err := a.needRelay(ctx); err != nil {
			return err
		}
		check.source = a.relay
	}

	if !watchStatus {
		sp := newSpinner(jsonOut, "Checking status...")
		report, err := check.source.Status(ctx, check.handle.Value)
		sp.Stop()
		if err != nil {
			return err
		}
		return showStatus(check, report, jsonOut)
	}

	if jsonOut {
		return fmt.Errorf("watch mode not supported with JSON output")
	}
	fmt.Printf("\nWatching %s\n", color.CyanString(check.handle.String()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)
	return watch(ctx, check, time.Duration(watchInterval)*time.Second)
}

func watch(ctx context.Context, check statusCheck, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := check.source.Status(ctx, check.handle.Value)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			_ = showStatus(check, report, false)
			if c := check.classify(report.Status); c == tracker.ClassSettled || c == tracker.ClassInvalid {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func showStatus(check statusCheck, report intent.StatusReport, jsonOut bool) error {
	class := check.classify(report.Status)
	if jsonOut {
		return printJSON(map[string]string{
			"handle":              check.handle.String(),
			"status":              report.Status,
			"class":               class.String(),
			"tx_hash":             report.TxHash,
			"destination_tx_hash": report.DestinationTxHash,
		})
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Handle:          %s\n", color.CyanString(check.handle.String()))
	fmt.Printf("  Status:          %s\n", coloredClass(class, report.Status))
	fmt.Printf("  Checked At:      %s\n", time.Now().Format("2006-01-02 15:04:05"))
	if report.TxHash != "" {
		fmt.Printf("  NEAR Tx:         %s\n", color.HiBlackString(report.TxHash))
	}
	if report.DestinationTxHash != "" {
		fmt.Printf("  Withdrawal Tx:   %s\n", color.HiBlackString(report.DestinationTxHash))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
	return nil
}

func coloredClass(c tracker.Class, status string) string {
	switch c {
	case tracker.ClassSettled:
		return color.GreenString(status)
	case tracker.ClassInvalid:
		return color.RedString(status)
	case tracker.ClassBroadcasted:
		return color.CyanString(status)
	default:
		return color.YellowString(status)
	}
}
