package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/jobfs"
	"github.com/grailbio/scrna/manifest"
	"v.io/x/lib/cmdline"
)

type initFlags struct {
	manifestPath string
	modules      string
	opts         jobfs.Opts
}

func newCmdInit() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "init",
		Short: "Create one cellranger job directory per manifest sample",
		Long: `
Init reads the LIMS manifest and, for every sample, creates

  <jobs>/<sample>/fastq/       fastqs named <sample>_S1_L001_R{1,2}_001.fastq.gz
  <jobs>/<sample>/output/      job stdout and stderr
  <jobs>/<sample>/<sample>.cmd the job script

Only manifest rows whose library and lane both passed QC are used. A sample
sequenced on one lane gets symbolic links to the facility's fastqs; a sample
sequenced on several gets the concatenation of its lanes.`,
	}
	flags := initFlags{opts: jobfs.DefaultOpts}
	flags.opts.Job.Modules = nil
	cmd.Flags.StringVar(&flags.manifestPath, "manifest", "info.txt", "LIMS manifest TSV, optionally gzipped")
	cmd.Flags.StringVar(&flags.opts.Reference, "reference", "", "Transcriptome to align to: human or mouse")
	cmd.Flags.StringVar(&flags.opts.JobsDir, "jobs", jobfs.DefaultOpts.JobsDir, "Directory receiving one job directory per sample")
	cmd.Flags.StringVar(&flags.opts.FastqRoot, "fastq-root", jobfs.DefaultOpts.FastqRoot, "Root of the sequencing facility's fastq tree")
	cmd.Flags.StringVar(&flags.opts.Job.Cellranger, "cellranger", jobfs.DefaultOpts.Job.Cellranger, "Path of the cellranger executable run by the job script")
	cmd.Flags.StringVar(&flags.opts.Job.Chemistry, "chemistry", jobfs.DefaultOpts.Job.Chemistry, "cellranger --chemistry")
	cmd.Flags.IntVar(&flags.opts.Job.ExpectCells, "expect-cells", jobfs.DefaultOpts.Job.ExpectCells, "cellranger --expect-cells")
	cmd.Flags.IntVar(&flags.opts.Job.LocalCores, "localcores", jobfs.DefaultOpts.Job.LocalCores, "cellranger --localcores")
	cmd.Flags.IntVar(&flags.opts.Job.LocalMem, "localmem", jobfs.DefaultOpts.Job.LocalMem, "cellranger --localmem, in GB")
	cmd.Flags.IntVar(&flags.opts.Job.CPUsPerTask, "cpus-per-task", jobfs.DefaultOpts.Job.CPUsPerTask, "Scheduler cpus_per_task")
	cmd.Flags.StringVar(&flags.opts.Job.WallClockLimit, "wall-clock-limit", jobfs.DefaultOpts.Job.WallClockLimit, "Scheduler wall_clock_limit")
	cmd.Flags.StringVar(&flags.modules, "modules", strings.Join(jobfs.DefaultOpts.Job.Modules, ","), "Comma-separated environment modules loaded by the job script")
	cmd.Flags.BoolVar(&flags.opts.Strict, "strict", false, "Fail on samples without qualifying manifest rows instead of skipping them")
	cmd.Flags.BoolVar(&flags.opts.Verify, "verify", false, "Check that every materialized fastq pair has matching reads")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("init takes no positional arguments, but got %v", argv)
		}
		_, err := runInit(vcontext.Background(), flags)
		return err
	})
	return cmd
}

func runInit(ctx context.Context, flags initFlags) (jobfs.Summary, error) {
	opts := flags.opts
	if flags.modules != "" {
		opts.Job.Modules = strings.Split(flags.modules, ",")
	}
	rows, err := manifest.Read(ctx, flags.manifestPath)
	if err != nil {
		return jobfs.Summary{}, err
	}
	summary, err := jobfs.Init(ctx, manifest.Samples(rows), opts, nil)
	if err != nil {
		return summary, err
	}
	log.Printf("%d samples linked, %d concatenated, %d skipped, %d directories created",
		len(summary.Linked), len(summary.Concatenated), len(summary.Skipped), len(summary.CreatedDirs))
	return summary, nil
}
