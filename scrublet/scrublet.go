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
Package scrublet scores single-cell barcodes for the likelihood of being
doublets, two cells captured under one barcode.

Doublets are simulated by summing the counts of random pairs of observed
barcodes. Observed and simulated barcodes are embedded together in the
principal components of the highly variable genes of the observed ones, and
each observed barcode is scored by the fraction of simulated doublets among
its nearest neighbors, corrected for the expected doublet rate. The
threshold separating singlets from doublets sits at the minimum between the
two modes of the simulated doublets' scores.

Memory is dominated by the dense standardized matrix of the observed
barcodes, 8 bytes per barcode and highly variable gene, and its thin SVD:
about 240 MB for 10,000 barcodes and 3,000 genes. Simulated doublets are
standardized and projected in chunks of projectChunk rows. The neighbor
search is exact and costs O(n^2) distance evaluations in the number of
observed plus simulated barcodes.
*/
package scrublet

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/encoding/mtx"
	"gonum.org/v1/gonum/mat"
)

// Result holds the per-barcode scores of one matrix. Slices are indexed like
// the rows of the input.
type Result struct {
	Scores []float64
	// Errors are the standard errors of Scores.
	Errors []float64
	// Z is the distance of each score to Threshold in standard errors.
	Z         []float64
	Predicted []bool
	// Called reports whether a threshold was set. Otherwise Threshold, Z,
	// Predicted and the rates are zero.
	Called bool
	// SimScores are the scores of the simulated doublets.
	SimScores []float64
	Threshold float64

	// DetectedRate is the fraction of barcodes called doublets.
	DetectedRate float64
	// DetectableFraction is the fraction of simulated doublets above the
	// threshold.
	DetectableFraction float64
	// OverallRate is DetectedRate / DetectableFraction.
	OverallRate float64

	// Genes are the highly variable genes used for the embedding, as column
	// indexes of the input.
	Genes []int
	// NNeighbors is the neighborhood size after adjusting for the simulated
	// doublets.
	NNeighbors int
}

func (o Opts) withDefaults() Opts {
	if o.ExpectedDoubletRate == 0 {
		o.ExpectedDoubletRate = DefaultOpts.ExpectedDoubletRate
	}
	if o.StdevDoubletRate == 0 {
		o.StdevDoubletRate = DefaultOpts.StdevDoubletRate
	}
	if o.SimDoubletRatio == 0 {
		o.SimDoubletRatio = DefaultOpts.SimDoubletRatio
	}
	if o.NPrinComps == 0 {
		o.NPrinComps = DefaultOpts.NPrinComps
	}
	return o
}

// Scrub scores the barcodes of counts, a barcode x gene matrix of raw UMI
// counts. Zero-valued ExpectedDoubletRate, StdevDoubletRate,
// SimDoubletRatio and NPrinComps take their DefaultOpts values. If
// opts.Threshold is 0 and no threshold can be detected, the barcodes are
// scored but not called and Result.Called is false.
func Scrub(counts *mtx.CSR, opts Opts) (Result, error) {
	var res Result
	opts = opts.withDefaults()
	if r := opts.ExpectedDoubletRate; r <= 0 || r >= 1 {
		return res, errors.E(errors.Invalid, fmt.Sprintf("expected doublet rate %v outside (0, 1)", r))
	}
	nObs := counts.NRows
	if nObs < 2 {
		return res, errors.E(errors.Precondition, fmt.Sprintf("need at least 2 barcodes, got %d", nObs))
	}

	log.Printf("preprocessing %d barcodes x %d genes", nObs, counts.NCols)
	totals := counts.RowSums()
	for i, t := range totals {
		if t <= 0 {
			return res, errors.E(errors.Precondition, fmt.Sprintf("barcode %d has no counts", i))
		}
	}
	var meanTotal float64
	for _, t := range totals {
		meanTotal += t
	}
	meanTotal /= float64(nObs)
	genes, err := filterGenes(counts.ScaleRows(scales(totals, meanTotal)), opts.MinCounts, opts.MinCells, opts.MinGeneVariabilityPctl)
	if err != nil {
		return res, err
	}
	res.Genes = genes
	log.Printf("%d highly variable genes", len(genes))
	obs := counts.SelectCols(genes)

	log.Printf("simulating doublets")
	sim, simTotals := simulateDoublets(obs, totals, opts.SimDoubletRatio, opts.Seed)
	nSim := sim.NRows
	if nSim == 0 {
		return res, errors.E(errors.Invalid, fmt.Sprintf("simulated doublet ratio %v yields no doublets", opts.SimDoubletRatio))
	}
	obs = obs.ScaleRows(scales(totals, postNormTotal))
	sim = sim.ScaleRows(scales(simTotals, postNormTotal))

	log.Printf("embedding transcriptomes using PCA")
	emb, err := embed(newZScorer(obs), obs, sim, opts.NPrinComps)
	if err != nil {
		return res, err
	}

	log.Printf("calculating doublet scores")
	k := opts.NNeighbors
	if k <= 0 {
		k = int(math.RoundToEven(0.5 * math.Sqrt(float64(nObs))))
	}
	r := float64(nSim) / float64(nObs)
	kAdj := int(math.RoundToEven(float64(k) * (1 + r)))
	if limit := nObs + nSim - 1; kAdj > limit {
		kAdj = limit
	}
	if kAdj < 1 {
		kAdj = 1
	}
	res.NNeighbors = kAdj
	if _, d := emb.obs.Dims(); d == 0 {
		return res, errors.E(errors.Precondition, "empty embedding")
	}
	var points mat.Dense
	points.Stack(emb.obs, emb.sim)
	nd, err := countSimNeighbors(&points, nObs, kAdj, opts.Parallelism)
	if err != nil {
		return res, err
	}
	scores := make([]float64, len(nd))
	errs := make([]float64, len(nd))
	for i, n := range nd {
		scores[i], errs[i] = doubletScore(n, kAdj, r, opts.ExpectedDoubletRate, opts.StdevDoubletRate)
	}
	res.Scores, res.Errors = scores[:nObs], errs[:nObs]
	res.SimScores = scores[nObs:]

	if !res.call(opts.Threshold) {
		log.Error.Printf("%v; barcodes are scored but not called", ErrNoThreshold)
		return res, nil
	}
	log.Printf("detected doublet rate = %.1f%%", 100*res.DetectedRate)
	log.Printf("estimated detectable doublet fraction = %.1f%%", 100*res.DetectableFraction)
	log.Printf("overall doublet rate: expected = %.1f%%, estimated = %.1f%%", 100*opts.ExpectedDoubletRate, 100*res.OverallRate)
	return res, nil
}

func scales(totals []float64, target float64) []float64 {
	w := make([]float64, len(totals))
	for i, t := range totals {
		w[i] = target / t
	}
	return w
}

// doubletScore converts the number of simulated doublets among the k
// neighbors of a barcode into a doublet likelihood and its standard error.
// r is the ratio of simulated to observed barcodes and rho the expected
// doublet rate.
func doubletScore(nSimNeighbors, k int, r, rho, seRho float64) (score, se float64) {
	q := (float64(nSimNeighbors) + 1) / (float64(k) + 2)
	denom := 1 - rho - q*(1-rho-rho/r)
	score = q * rho / r / denom
	seQ := math.Sqrt(q * (1 - q) / (float64(k) + 3))
	se = q * rho / r / (denom * denom) * math.Sqrt(math.Pow(seQ/q*(1-rho), 2)+math.Pow(seRho/rho*(1-q), 2))
	return
}

// call sets the threshold, to manual when positive and otherwise at the
// valley of the simulated doublet scores, and calls doublets. It reports
// false, leaving the calls unset, when the simulated scores are not bimodal.
func (res *Result) call(manual float64) bool {
	if manual > 0 {
		res.Threshold = manual
	} else {
		thr, err := minimumThreshold(res.SimScores)
		if err != nil {
			return false
		}
		res.Threshold = thr
		log.Printf("automatically set threshold at doublet score = %.2f", res.Threshold)
	}
	res.callDoublets()
	return true
}

// callDoublets sets the predictions and rates from the scores and threshold.
func (res *Result) callDoublets() {
	res.Called = true
	res.Predicted = make([]bool, len(res.Scores))
	res.Z = make([]float64, len(res.Scores))
	var detected, detectable int
	for i, s := range res.Scores {
		res.Predicted[i] = s > res.Threshold
		res.Z[i] = (s - res.Threshold) / res.Errors[i]
		if res.Predicted[i] {
			detected++
		}
	}
	for _, s := range res.SimScores {
		if s > res.Threshold {
			detectable++
		}
	}
	res.DetectedRate = float64(detected) / float64(len(res.Scores))
	res.DetectableFraction = float64(detectable) / float64(len(res.SimScores))
	if res.DetectableFraction > 0 {
		res.OverallRate = res.DetectedRate / res.DetectableFraction
	}
}
