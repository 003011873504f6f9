package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"tonscraper/pkg/storage"
	"tonscraper/pkg/ui"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [root]",
	Short: "Report how artifacts are spread across the shard tree",
	Long: `Walk the artifact tree and report per-directory occupancy, the depth the tree
was written with and the depth recommended for its current size.

A tree holding artifacts at more than one depth is reported as mixed; the
harvester never mixes depths within one tree.`,
	Example: `  tonscraper analyze
  tonscraper analyze ./data/accounts --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var analyzeJSON bool

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON")
}

type analyzeReport struct {
	Root             string               `json:"root"`
	Distribution     storage.Distribution `json:"distribution"`
	DetectedDepth    int                  `json:"detected_depth,omitempty"`
	RecommendedDepth int                  `json:"recommended_depth"`
	Mixed            bool                 `json:"mixed"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	root := cfg.Storage.Root
	if len(args) > 0 {
		root = args[0]
	}

	dist, err := storage.AnalyzeDistribution(root)
	if err != nil {
		return err
	}
	detected, ok, err := storage.DetectDepth(root)
	if err != nil {
		return err
	}

	report := analyzeReport{
		Root:             root,
		Distribution:     dist,
		RecommendedDepth: storage.OptimalDepth(dist.TotalFiles),
		Mixed:            len(dist.FilesByDepth) > 1,
	}
	if ok {
		report.DetectedDepth = detected
	}

	if analyzeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	detectedValue := "none (empty tree)"
	if ok {
		detectedValue = strconv.Itoa(detected)
	}
	ui.PrintPanel("Distribution", []ui.Row{
		{Label: "Root", Value: root},
		{Label: "Artifacts", Value: strconv.FormatInt(dist.TotalFiles, 10)},
		{Label: "Directories", Value: strconv.FormatInt(dist.TotalDirectories, 10)},
		{Label: "Leaf directories", Value: strconv.FormatInt(dist.LeafDirectories, 10)},
		{Label: "Files per leaf", Value: fmt.Sprintf("avg %.1f, min %d, max %d",
			dist.AvgFilesPerDir, dist.MinFilesPerDir, dist.MaxFilesPerDir)},
		{Label: "Detected depth", Value: detectedValue},
		{Label: "Recommended depth", Value: strconv.Itoa(report.RecommendedDepth)},
	})

	if report.Mixed {
		depths := make([]int, 0, len(dist.FilesByDepth))
		for d := range dist.FilesByDepth {
			depths = append(depths, d)
		}
		sort.Ints(depths)
		items := make([]string, 0, len(depths))
		for _, d := range depths {
			items = append(items, fmt.Sprintf("depth %d: %d artifacts", d, dist.FilesByDepth[d]))
		}
		ui.PrintWarning("Tree holds artifacts at more than one depth")
		ui.PrintList(items, len(items))
	}
	if ok && detected != report.RecommendedDepth {
		ui.PrintWarning(fmt.Sprintf("Tree was written at depth %d; a fresh tree of this size would use %d",
			detected, report.RecommendedDepth))
	}
	if storage.DepthSaturated(dist.TotalFiles) {
		ui.PrintWarning("Artifact count exceeds the deepest layout's target occupancy")
	}
	return nil
}
