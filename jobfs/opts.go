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

package jobfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
)

// References maps a reference selector to a cellranger transcriptome
// directory.
type References map[string]string

// DefaultReferences are the transcriptomes installed on the cluster.
var DefaultReferences = References{
	"human": "/scratch/groups/hheyn/data/reference/refdata-gex-GRCh38-2020-A/",
	"mouse": "/scratch/groups/hheyn/data/reference/refdata-gex-mm10-2020-A/",
}

// Resolve returns the transcriptome path for the selector. Unknown selectors
// are an error.
func (r References) Resolve(selector string) (string, error) {
	if path, ok := r[selector]; ok {
		return path, nil
	}
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", errors.E(errors.Invalid, fmt.Sprintf("unknown reference %q, want one of: %s", selector, strings.Join(names, ", ")))
}

// JobOpts are the fixed parts of the generated job script.
type JobOpts struct {
	// CPUsPerTask and WallClockLimit are scheduler resource directives.
	CPUsPerTask    int
	WallClockLimit string
	// Modules are loaded, in order, before cellranger runs.
	Modules []string
	// Cellranger is the path of the cellranger executable.
	Cellranger  string
	Chemistry   string
	ExpectCells int
	LocalCores  int
	// LocalMem is in GB.
	LocalMem int
}

// Opts controls Init.
type Opts struct {
	// JobsDir is the directory under which one job directory per sample is
	// created.
	JobsDir string
	// FastqRoot is the root of the sequencing facility's fastq tree, laid
	// out as <root>/<flowcell>/<lane>/fastq/.
	FastqRoot string
	// Reference selects the transcriptome from References.
	Reference  string
	References References
	Job        JobOpts
	// Strict makes a sample without qualifying manifest rows a fatal error.
	// Otherwise the sample is skipped with an error log line.
	Strict bool
	// Verify scans every materialized fastq pair and fails on truncated or
	// discordant pairs.
	Verify bool
}

// DefaultOpts are the values used on the production cluster.
var DefaultOpts = Opts{
	JobsDir:    "jobs",
	FastqRoot:  "/scratch/project/production/fastq",
	References: DefaultReferences,
	Job: JobOpts{
		CPUsPerTask:    12,
		WallClockLimit: "16:00:00",
		Modules:        []string{"PYTHON/2.7.5", "lims/1.2"},
		Cellranger:     "/scratch/groups/hheyn/software/cellranger/4.0.0/cellranger",
		Chemistry:      "SC3Pv3",
		ExpectCells:    5000,
		LocalCores:     8,
		LocalMem:       64,
	},
}
