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

// Package doublet scores the barcodes of one cellranger subproject for
// doublets and writes the scores as CSV.
package doublet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/encoding/mtx"
	"github.com/grailbio/scrna/scrublet"
)

// Opts controls Score.
type Opts struct {
	// MatricesDir holds one cellranger output directory per subproject.
	MatricesDir string
	// OutputDir receives the CSV files. It is created if missing.
	OutputDir string
	Scrublet  scrublet.Opts
}

// DefaultOpts reads cellranger results from the sibling analysis tree.
var DefaultOpts = Opts{
	MatricesDir: "../../sc_analysis/01-cellranger/results",
	OutputDir:   "2020-09-22/scrublet_scores",
	Scrublet:    scrublet.DefaultOpts,
}

// MatrixDir is the filtered feature-barcode matrix of a subproject.
func MatrixDir(matricesDir, subproject string) string {
	return filepath.Join(matricesDir, subproject, "outs", "filtered_feature_bc_matrix")
}

// MatrixPath is the gene x barcode count matrix of a subproject.
func MatrixPath(matricesDir, subproject string) string {
	return filepath.Join(MatrixDir(matricesDir, subproject), "matrix.mtx.gz")
}

// BarcodesPath lists the barcodes of the matrix columns, one per line.
func BarcodesPath(matricesDir, subproject string) string {
	return filepath.Join(MatrixDir(matricesDir, subproject), "barcodes.tsv.gz")
}

// OutputPath is the CSV written for a subproject.
func OutputPath(outputDir, subproject string) string {
	return filepath.Join(outputDir, fmt.Sprintf("scrublet_doublet_prediction-%s.csv", subproject))
}

// Report is the outcome of Score.
type Report struct {
	// Path is the CSV file written.
	Path    string
	Records []Record
	Result  scrublet.Result
}

// Score reads the filtered count matrix of subproject, scores every barcode
// and writes one record per barcode, in barcode order. If the detector finds
// no threshold, the records are written with an empty prediction.
func Score(ctx context.Context, subproject string, opts Opts) (Report, error) {
	var report Report
	if subproject == "" {
		return report, errors.E(errors.Invalid, "empty subproject")
	}
	genesByBarcodes, err := mtx.ReadFile(ctx, MatrixPath(opts.MatricesDir, subproject))
	if err != nil {
		return report, err
	}
	counts := genesByBarcodes.T()
	barcodes, err := mtx.ReadBarcodesFile(ctx, BarcodesPath(opts.MatricesDir, subproject))
	if err != nil {
		return report, err
	}
	if len(barcodes) != counts.NRows {
		return report, errors.E(errors.Integrity, fmt.Sprintf("%d barcodes for a matrix of %d barcodes", len(barcodes), counts.NRows), subproject)
	}
	log.Printf("Counts matrix shape: %d rows, %d columns", counts.NRows, counts.NCols)

	res, err := scrublet.Scrub(counts, opts.Scrublet)
	if err != nil {
		return report, errors.E(err, "scrublet", subproject)
	}
	report.Result = res
	report.Records = make([]Record, len(barcodes))
	for i, bc := range barcodes {
		report.Records[i] = Record{Barcode: bc, Score: res.Scores[i]}
		if res.Called {
			report.Records[i].Predicted = NewCall(res.Predicted[i])
		}
	}

	if err := os.MkdirAll(opts.OutputDir, 0777); err != nil {
		return report, errors.E(err, "mkdir", opts.OutputDir)
	}
	report.Path = OutputPath(opts.OutputDir, subproject)
	if err := WriteRecords(ctx, report.Path, report.Records); err != nil {
		return report, err
	}
	log.Printf("wrote %d records to %s", len(report.Records), report.Path)
	return report, nil
}
