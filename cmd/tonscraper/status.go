package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"tonscraper/pkg/checkpoint"
	"tonscraper/pkg/logger"
	"tonscraper/pkg/storage"
	"tonscraper/pkg/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor and artifact tree state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Manage the persisted pagination cursor",
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the cursor so the next run starts from the first page",
	Long: `Forget the cursor so the next run starts from the first page.

The previous cursor file is kept as <path>.backup. Artifacts already on disk
are not touched; they are reported as existing on the next pass.`,
	Args: cobra.NoArgs,
	RunE: runCursorReset,
}

var forceReset bool

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cursorCmd)
	cursorCmd.AddCommand(cursorResetCmd)

	for _, c := range []*cobra.Command{statusCmd, cursorResetCmd} {
		c.Flags().StringVar(&checkpointPath, "checkpoint", "", "cursor file")
	}
	statusCmd.Flags().StringVarP(&storageRoot, "output", "o", "", "artifact tree root")
	cursorResetCmd.Flags().BoolVarP(&forceReset, "force", "f", false, "do not ask for confirmation")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cursor := checkpoint.NewManager(cfg.Checkpoint.Path, logger.GetLogger())
	info, err := cursor.Info()
	if err != nil {
		return err
	}

	rows := []ui.Row{{Label: "File", Value: cursor.Path()}}
	if info == nil {
		rows = append(rows, ui.Row{Label: "Cursor", Value: "<start>"})
	} else {
		rows = append(rows,
			ui.Row{Label: "Cursor", Value: displayCursor(fmt.Sprint(info["cursor"]))},
			ui.Row{Label: "Pages processed", Value: fmt.Sprint(info["pages_processed"])},
			ui.Row{Label: "Records saved", Value: fmt.Sprint(info["records_saved"])},
			ui.Row{Label: "Updated", Value: fmt.Sprintf("%s (%v ago)",
				info["updated_at"].(time.Time).Format(time.RFC3339), info["age"])},
		)
	}
	ui.PrintPanel("Cursor", rows)

	resolution, err := storage.ResolveDepth(cfg.Storage.Depth, cfg.Storage.ExpectedFiles, cfg.Storage.Root)
	if err != nil {
		return err
	}
	ui.PrintPanel("Storage", []ui.Row{
		{Label: "Root", Value: cfg.Storage.Root},
		{Label: "Depth", Value: strconv.Itoa(resolution.Depth) + " (" + string(resolution.Source) + ")"},
		{Label: "Expected files", Value: strconv.FormatInt(cfg.Storage.ExpectedFiles, 10)},
	})

	fc := cfg.Filter
	ui.PrintPanel("Filter", []ui.Row{
		{Label: "Reserved shards", Value: strings.Join(fc.ReservedShards, ", ")},
		{Label: "Zero threshold", Value: fmt.Sprintf("system %.2f, other %.2f", fc.SystemZeroThreshold, fc.NormalZeroThreshold)},
		{Label: "Edge run length", Value: strconv.Itoa(fc.EdgeRunLength)},
		{Label: "Distinct chunks", Value: fmt.Sprintf("%d of %d chars", fc.MinDistinctChunks, fc.ChunkSize)},
		{Label: "Min length", Value: strconv.Itoa(fc.MinLength)},
		{Label: "Custom patterns", Value: strconv.Itoa(len(fc.CustomPatterns))},
	})
	return nil
}

func runCursorReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cursor := checkpoint.NewManager(cfg.Checkpoint.Path, logger.GetLogger())
	state, err := cursor.State()
	if err != nil {
		return err
	}
	if state == nil {
		ui.PrintInfo("No cursor stored", cursor.Path())
		return nil
	}

	if !forceReset {
		fmt.Printf("Reset cursor %s (%d pages processed)? (y/N): ", state.Cursor, state.PagesProcessed)
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	if err := cursor.Reset(); err != nil {
		return err
	}
	ui.PrintSuccess("Cursor reset, backup kept at " + cursor.Path() + ".backup")
	return nil
}
