package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"tonscraper/pkg/harvester"
	"tonscraper/pkg/metrics"
	"tonscraper/pkg/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest pages until the source is exhausted",
	Long: `Harvest pages until the source reports no next page, the cursor stops moving
or --max-iterations is reached.

The first SIGINT/SIGTERM stops new pages and lets running fetches finish within
harvest.shutdown_grace. A second signal exits immediately; artifacts and the
cursor are written atomically, so no partial file is left behind.`,
	Example: `  # Harvest everything with the stored API key
  tonscraper run

  # Five pages, six concurrent fetches, metrics on :9090
  tonscraper run --max-iterations 5 --concurrent 6 --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Process a single page and advance the cursor",
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	addHarvestFlags(runCmd)
	addHarvestFlags(onceCmd)
}

// signalContext is cancelled by the first SIGINT/SIGTERM. Later signals get the
// default behaviour and kill the process.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		select {
		case <-done:
			return
		default:
		}
		stop()
		ui.PrintWarning("Shutting down, waiting for in-flight fetches (signal again to force)")
	}()
	return ctx, func() {
		close(done)
		stop()
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var srv *metrics.Server
	if cfg.Metrics.Enabled {
		srv = metrics.NewServer(a.metrics, cfg.Metrics.ListenAddr)
		a.log.WithField("addr", cfg.Metrics.ListenAddr).Info("Serving metrics")
		g.Go(srv.Start)
	}

	var result *harvester.RunResult
	g.Go(func() error {
		defer func() {
			if srv == nil {
				return
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				a.log.WithError(err).Warn("Metrics server shutdown failed")
			}
		}()

		var err error
		result, err = a.harvester.Run(gctx)
		return err
	})

	err = g.Wait()
	if result != nil {
		rows := append([]ui.Row{
			{Label: "Iterations", Value: strconv.Itoa(result.Iterations)},
			{Label: "Pages advanced", Value: strconv.Itoa(result.PagesAdvanced)},
			{Label: "Stopped", Value: string(result.StopReason)},
			{Label: "Files written", Value: strconv.FormatInt(a.store.Written(), 10)},
		}, summaryRows(result.Summary)...)
		ui.PrintPanel("Harvest", rows)
		printErrors(result.Summary)
	}
	if err != nil {
		a.log.WithError(err).Error("Harvest failed")
		return err
	}

	a.log.InfoWithFields("Harvest finished", map[string]interface{}{
		"iterations":  result.Iterations,
		"stop_reason": string(result.StopReason),
		"saved":       result.Summary.Successful,
		"written":     a.store.Written(),
	})
	ui.PrintSuccess("Harvest finished")
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := a.harvester.RunIteration(ctx)
	rows := append([]ui.Row{
		{Label: "Run ID", Value: res.RunID},
		{Label: "Cursor", Value: displayCursor(res.Cursor)},
		{Label: "Next cursor", Value: displayCursor(res.NextCursor)},
		{Label: "Has next page", Value: strconv.FormatBool(res.HasNextPage)},
		{Label: "Cursor advanced", Value: strconv.FormatBool(res.CursorAdvanced)},
		{Label: "Peak in-flight", Value: strconv.Itoa(res.PeakInFlight)},
		{Label: "Files written", Value: strconv.FormatInt(a.store.Written(), 10)},
	}, summaryRows(res.Summary)...)
	ui.PrintPanel("Iteration", rows)
	printErrors(res.Summary)
	return err
}

func displayCursor(c string) string {
	if c == "" {
		return "<start>"
	}
	return c
}
