// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package jobfs initializes the filesystem of a cellranger project.

For every sample of the manifest it creates

  <jobs>/<sample>/fastq/         the two cellranger-named fastq inputs
  <jobs>/<sample>/output/        stdout and stderr of the job
  <jobs>/<sample>/<sample>.cmd   the job script running "cellranger count"

A sample sequenced on one qualifying (flowcell, lane) gets symbolic links to
the facility's fastqs. A sample sequenced on several gets, for each read
direction, one file holding the concatenation of all its lanes in manifest
order. Directories are created only if missing; fastq targets and job
scripts are rewritten on every run.
*/
package jobfs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/encoding/fastq"
	"github.com/grailbio/scrna/manifest"
)

// Summary reports what Init did.
type Summary struct {
	// Linked and Concatenated list the samples by materialization kind.
	Linked       []string
	Concatenated []string
	// Skipped lists samples without qualifying manifest rows.
	Skipped []string
	// Scripts lists the job scripts written.
	Scripts []string
	// CreatedDirs lists the directories that did not exist before.
	CreatedDirs []string
}

// Init builds one job directory per sample. Samples are processed one at a
// time, in order. If m is nil, a FileMaterializer is used.
func Init(ctx context.Context, samples []manifest.Sample, opts Opts, m Materializer) (Summary, error) {
	var summary Summary
	if m == nil {
		m = FileMaterializer{}
	}
	refs := opts.References
	if refs == nil {
		refs = DefaultReferences
	}
	transcriptome, err := refs.Resolve(opts.Reference)
	if err != nil {
		return summary, err
	}
	log.Printf("reference path is %s", transcriptome)

	// Job scripts embed the fastq directory, and run from their own directory.
	jobsDir, err := filepath.Abs(opts.JobsDir)
	if err != nil {
		return summary, errors.E(err, "abs", opts.JobsDir)
	}
	created, err := ensureDir(jobsDir)
	if err != nil {
		return summary, err
	}
	if created {
		summary.CreatedDirs = append(summary.CreatedDirs, jobsDir)
	}

	for _, sample := range samples {
		plan, err := PlanSample(sample, jobsDir, opts.FastqRoot)
		if err != nil {
			if errors.Is(errors.NotExist, err) && !opts.Strict {
				log.Error.Printf("skipping sample %s: %v", sample.Name, err)
				summary.Skipped = append(summary.Skipped, sample.Name)
				continue
			}
			return summary, err
		}
		log.Printf("sample %s: %d qualifying lanes of %d, %s", sample.Name, plan.Cardinality(), len(sample.Rows), plan.Materializations[0].Kind)
		if err := initSample(ctx, plan, transcriptome, opts, m, &summary); err != nil {
			return summary, errors.E(err, "sample", sample.Name)
		}
	}
	return summary, nil
}

func initSample(ctx context.Context, plan Plan, transcriptome string, opts Opts, m Materializer, summary *Summary) error {
	for _, dir := range plan.Layout.Dirs() {
		created, err := ensureDir(dir)
		if err != nil {
			return err
		}
		if created {
			summary.CreatedDirs = append(summary.CreatedDirs, dir)
		}
	}
	if err := Materialize(ctx, m, plan); err != nil {
		return err
	}
	switch plan.Materializations[0].Kind {
	case Link:
		summary.Linked = append(summary.Linked, plan.Layout.Sample)
	case Concat:
		summary.Concatenated = append(summary.Concatenated, plan.Layout.Sample)
	}
	if opts.Verify {
		n, err := fastq.CountPairs(ctx, plan.Materializations[0].Target, plan.Materializations[1].Target)
		if err != nil {
			return err
		}
		log.Printf("sample %s: %d read pairs", plan.Layout.Sample, n)
	}

	script := JobScript{
		Sample:        plan.Layout.Sample,
		FastqDir:      plan.Layout.FastqDir(),
		Transcriptome: transcriptome,
		Job:           opts.Job,
	}
	if err := writeScript(ctx, plan.Layout.Script(), script); err != nil {
		return err
	}
	summary.Scripts = append(summary.Scripts, plan.Layout.Script())
	return nil
}

func writeScript(ctx context.Context, path string, script JobScript) (err error) {
	text, err := script.Render()
	if err != nil {
		return errors.E(err, "render job script", path)
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = errors.E(err2, "close", path)
		}
	}()
	if _, err = out.Writer(ctx).Write(text); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

// ensureDir creates dir unless it already exists. It reports whether the
// directory was created.
func ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, errors.E(errors.Exists, dir, "exists and is not a directory")
		}
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, errors.E(err, "stat", dir)
	}
	if err := os.Mkdir(dir, 0777); err != nil {
		return false, errors.E(err, "mkdir", dir)
	}
	return true, nil
}
