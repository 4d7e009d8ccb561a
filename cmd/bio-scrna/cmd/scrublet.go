package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/doublet"
	"v.io/x/lib/cmdline"
)

func newCmdScrublet() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "scrublet",
		Short:    "Score the barcodes of a cellranger subproject for doublets",
		ArgsName: "subproject",
		Long: `
Scrublet reads <matrices>/<subproject>/outs/filtered_feature_bc_matrix/ and
writes <out>/scrublet_doublet_prediction-<subproject>.csv with the columns
barcodes, scrublet_doublet_scores and scrublet_predicted_doublet.`,
	}
	opts := doublet.DefaultOpts
	cmd.Flags.StringVar(&opts.MatricesDir, "matrices", doublet.DefaultOpts.MatricesDir, "Directory of cellranger results, one subdirectory per subproject")
	cmd.Flags.StringVar(&opts.OutputDir, "out", doublet.DefaultOpts.OutputDir, "Output directory, created if missing")
	s := &opts.Scrublet
	cmd.Flags.Float64Var(&s.ExpectedDoubletRate, "expected-doublet-rate", s.ExpectedDoubletRate, "Expected fraction of doublets")
	cmd.Flags.Float64Var(&s.StdevDoubletRate, "stdev-doublet-rate", s.StdevDoubletRate, "Uncertainty of the expected doublet rate")
	cmd.Flags.Float64Var(&s.SimDoubletRatio, "sim-doublet-ratio", s.SimDoubletRatio, "Number of simulated doublets per observed barcode")
	cmd.Flags.IntVar(&s.NNeighbors, "n-neighbors", s.NNeighbors, "Neighborhood size; 0 = round(0.5*sqrt(#barcodes))")
	cmd.Flags.Float64Var(&s.MinCounts, "min-counts", s.MinCounts, "Minimum normalized count of a gene in a barcode")
	cmd.Flags.IntVar(&s.MinCells, "min-cells", s.MinCells, "Minimum number of barcodes reaching -min-counts for a gene to be kept")
	cmd.Flags.Float64Var(&s.MinGeneVariabilityPctl, "min-gene-variability-pctl", s.MinGeneVariabilityPctl, "Keep genes at or above this v-score percentile")
	cmd.Flags.IntVar(&s.NPrinComps, "n-prin-comps", s.NPrinComps, "Number of principal components")
	cmd.Flags.Float64Var(&s.Threshold, "threshold", s.Threshold, "Doublet score threshold; 0 = detect automatically")
	cmd.Flags.Int64Var(&s.Seed, "seed", s.Seed, "Seed of the doublet simulation")
	cmd.Flags.IntVar(&s.Parallelism, "parallelism", s.Parallelism, "Maximum number of concurrent neighbor searches; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("scrublet takes one subproject argument, but got %v", argv)
		}
		report, err := doublet.Score(vcontext.Background(), argv[0], opts)
		if err != nil {
			return err
		}
		if !report.Result.Called {
			fmt.Fprintf(env.Stdout, "%s\t%d barcodes\tnot called, rerun with -threshold\n", report.Path, len(report.Records))
			return nil
		}
		fmt.Fprintf(env.Stdout, "%s\t%d barcodes\t%d predicted doublets\n", report.Path, len(report.Records), countTrue(report.Result.Predicted))
		return nil
	})
	return cmd
}

func countTrue(b []bool) int {
	var n int
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}
