package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adixon02/AutoHVAC-sub002/kit"
	"github.com/adixon02/AutoHVAC-sub002/manualj"
	"github.com/adixon02/AutoHVAC-sub002/pipeline"
)

var (
	runZIP          string
	runLabel        string
	runAI           bool
	runScale        string
	runPage         int
	runDuct         string
	runFuel         string
	runVintage      string
	runConstruction string
	runFoundation   string
	runOut          string
)

var runCmd = &cobra.Command{
	Use:   "run <blueprint.pdf>",
	Short: "Process one blueprint without the job store",
	Long: `Run executes every stage on one PDF and writes the result document
(blueprint schema and Manual J load) as JSON. Nothing is queued or stored.

Examples:
  autohvac run plan.pdf --zip 97701
  autohvac run plan.pdf --zip 30301 --scale '1/4"=1'"'"'-0"' --page 2 -o load.json
  autohvac run plan.pdf --zip 97701 --ai --vintage pre_1980`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		job := pipeline.Job{
			PDFPath:       args[0],
			ZIP:           runZIP,
			ProjectLabel:  runLabel,
			ScaleOverride: runScale,
			PageOverride:  runPage,
			Duct:          manualj.DuctConfig(runDuct),
			Fuel:          manualj.Fuel(runFuel),
			Vintage:       manualj.Vintage(runVintage),
			Construction:  manualj.Construction(runConstruction),
			Foundation:    manualj.Foundation(runFoundation),
		}
		if cmd.Flags().Changed("ai") {
			job.AIEnabled = &runAI
		}
		doc, err := a.pipeline.Run(kit.WithTransport(cmd.Context(), "cli"), job)
		if err != nil {
			// The structured error carries the recommendation.
			enc := json.NewEncoder(cmd.ErrOrStderr())
			enc.SetIndent("", "  ")
			_ = enc.Encode(map[string]any{"error": pipeline.JobErrorOf(err)})
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if runOut != "" {
			f, err := os.Create(runOut)
			if err != nil {
				return fmt.Errorf("autohvac: %w", err)
			}
			defer f.Close()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runZIP, "zip", "", "project ZIP code (required)")
	f.StringVar(&runLabel, "label", "", "project label")
	f.BoolVar(&runAI, "ai", false, "use the vision model for room structuring (default: ai.enabled)")
	f.StringVar(&runScale, "scale", "", `scale override, notation (1/4"=1'-0") or points per foot`)
	f.IntVar(&runPage, "page", 0, "1-based page to parse; 0 selects automatically")
	f.StringVar(&runDuct, "duct", "", "duct location: conditioned, attic, crawlspace, basement, ductless")
	f.StringVar(&runFuel, "fuel", "", "heating fuel: heat_pump, gas, electric, oil, propane")
	f.StringVar(&runVintage, "vintage", "", "envelope vintage: pre_1980, 1980_2000, 2000_2010, post_2010, high_performance")
	f.StringVar(&runConstruction, "construction", "", "wall construction: wood, steel, masonry")
	f.StringVar(&runFoundation, "foundation", "", "foundation: slab, crawlspace, basement")
	f.StringVarP(&runOut, "output", "o", "", "write the result to a file instead of stdout")
	_ = runCmd.MarkFlagRequired("zip")
}
