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
	"path/filepath"

	"github.com/grailbio/scrna/manifest"
)

// ReadDirection is one side of a paired-end library.
type ReadDirection int

const (
	// R1 is the first read of each pair.
	R1 ReadDirection = 1
	// R2 is the second read of each pair.
	R2 ReadDirection = 2
)

// ReadDirections lists both read directions in order.
var ReadDirections = [2]ReadDirection{R1, R2}

func (r ReadDirection) String() string {
	return fmt.Sprintf("R%d", int(r))
}

// Kind is the way a fastq input is made available to cellranger.
type Kind int

const (
	// Link makes the target a symbolic link to the single source.
	Link Kind = iota
	// Concat writes the concatenation of all sources to the target.
	Concat
)

func (k Kind) String() string {
	switch k {
	case Link:
		return "link"
	case Concat:
		return "concat"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Materialization describes how one fastq target of a sample is produced.
type Materialization struct {
	Read    ReadDirection
	Kind    Kind
	Sources []string
	Target  string
}

// Layout is the job directory tree of one sample:
//
//   <jobs>/<sample>/
//     fastq/
//     output/
//     <sample>.cmd
type Layout struct {
	Sample string
	Dir    string
}

// NewLayout returns the layout of sample under jobsDir.
func NewLayout(jobsDir, sample string) Layout {
	return Layout{Sample: sample, Dir: filepath.Join(jobsDir, sample)}
}

// FastqDir holds the cellranger-named fastq inputs.
func (l Layout) FastqDir() string { return filepath.Join(l.Dir, "fastq") }

// OutputDir receives the job's stdout and stderr.
func (l Layout) OutputDir() string { return filepath.Join(l.Dir, "output") }

// Script is the job script path.
func (l Layout) Script() string { return filepath.Join(l.Dir, l.Sample+".cmd") }

// Dirs lists the directories to create, parents first.
func (l Layout) Dirs() []string { return []string{l.Dir, l.FastqDir(), l.OutputDir()} }

// FastqPath returns the path of one read direction of one (flowcell, lane)
// in the sequencing facility's tree:
//
//   <root>/<flowcell>/<lane>/fastq/<flowcell>_<lane>_<index>_<1|2>.fastq.gz
func FastqPath(root, flowcell, lane, index string, read ReadDirection) string {
	name := fmt.Sprintf("%s_%s_%s_%d.fastq.gz", flowcell, lane, index, int(read))
	return filepath.Join(root, flowcell, lane, "fastq", name)
}

// TargetName returns the cellranger file name of a sample's fastq input.
// Every sample is presented as sample-sheet slot S1, lane 1.
func TargetName(sample string, read ReadDirection) string {
	return fmt.Sprintf("%s_S1_L001_%s_001.fastq.gz", sample, read)
}

// Plan is everything Init does for one sample, before any filesystem effect.
type Plan struct {
	Layout Layout
	// Rows are the qualifying manifest rows, in manifest order.
	Rows             []manifest.Row
	Materializations [2]Materialization
}

// Cardinality is the number of qualifying (flowcell, lane) pairs.
func (p Plan) Cardinality() int { return len(p.Rows) }

// PlanSample decides how the fastq inputs of a sample are produced. A sample
// sequenced on a single qualifying (flowcell, lane) is linked; one sequenced
// on several is concatenated in manifest order. A sample without qualifying
// rows yields an error of kind errors.NotExist.
func PlanSample(sample manifest.Sample, jobsDir, fastqRoot string) (Plan, error) {
	rep, err := sample.Representative()
	if err != nil {
		return Plan{}, err
	}
	p := Plan{
		Layout: NewLayout(jobsDir, sample.Name),
		Rows:   sample.Qualifying(),
	}
	kind := Link
	if len(p.Rows) > 1 {
		kind = Concat
	}
	for i, read := range ReadDirections {
		m := Materialization{
			Read:   read,
			Kind:   kind,
			Target: filepath.Join(p.Layout.FastqDir(), TargetName(sample.Name, read)),
		}
		for _, row := range p.Rows {
			// The index is shared by all lanes of the library.
			m.Sources = append(m.Sources, FastqPath(fastqRoot, row.Flowcell, row.Lane, rep.Index, read))
		}
		p.Materializations[i] = m
	}
	return p, nil
}
