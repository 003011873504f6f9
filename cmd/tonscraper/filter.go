package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"tonscraper/pkg/filter"
	"tonscraper/pkg/logger"
	"tonscraper/pkg/ui"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Inspect the identifier pre-filter",
}

var filterCheckCmd = &cobra.Command{
	Use:   "check [identifier...]",
	Short: "Classify identifiers without any network call",
	Long: `Classify identifiers with the configured heuristics and print KEEP or SKIP
with the reason. Identifiers are read from stdin, one per line, when none are
given as arguments.`,
	Example: `  tonscraper filter check 0:0000000000000000000000000000000000000000000000000000000000000000
  cat ids.txt | tonscraper filter check --kept-only`,
	RunE: runFilterCheck,
}

var keptOnly bool

func init() {
	rootCmd.AddCommand(filterCmd)
	filterCmd.AddCommand(filterCheckCmd)
	filterCheckCmd.Flags().BoolVar(&keptOnly, "kept-only", false, "print only kept identifiers, one per line")
	filterCheckCmd.Flags().StringSliceVar(&filterPatterns, "skip-pattern", nil, "extra regular expression of identifiers to skip")
}

func runFilterCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f := filter.New(cfg.Filter, logger.GetLogger().WithField("component", "filter"))
	for _, e := range f.ConfigErrors() {
		ui.PrintWarning("Ignoring filter pattern", e)
	}

	ids := args
	if len(ids) == 0 {
		ids, err = readIdentifiers(os.Stdin)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for i, d := range f.ClassifyAll(ids) {
		id := ids[i]
		switch {
		case keptOnly && d.Keep:
			fmt.Fprintln(out, id)
		case keptOnly:
		case d.Keep:
			fmt.Fprintf(out, "KEEP %s\n", id)
		default:
			fmt.Fprintf(out, "SKIP %s (%s)\n", id, d.Reason)
		}
	}

	if keptOnly {
		return nil
	}
	snap := f.Stats().Snapshot()
	rows := []ui.Row{
		{Label: "Total", Value: strconv.FormatInt(snap.Total, 10)},
		{Label: "Kept", Value: strconv.FormatInt(snap.Kept, 10)},
		{Label: "Skipped", Value: strconv.FormatInt(snap.Skipped, 10)},
	}
	reasons := make([]string, 0, len(snap.SkippedByReason))
	for r := range snap.SkippedByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		rows = append(rows, ui.Row{Label: "  " + r, Value: strconv.FormatInt(snap.SkippedByReason[r], 10)})
	}
	ui.PrintPanel("Filter", rows)
	return nil
}

func readIdentifiers(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read identifiers: %w", err)
	}
	return ids, nil
}
