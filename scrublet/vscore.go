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

package scrublet

import (
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/encoding/mtx"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// percentile returns the p-th percentile of x, interpolating linearly
// between the two closest ranks. x is not modified.
func percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(s) {
		hi = len(s) - 1
	}
	frac := rank - float64(lo)
	return s[lo] + frac*(s[hi]-s[lo])
}

// runningQuantile computes the p-th percentile of y in nBins equal-width bins
// of x. Empty bins repeat the previous bin's value, or NaN for a leading
// empty bin.
func runningQuantile(x, y []float64, p float64, nBins int) (xOut, yOut []float64) {
	xOut = make([]float64, nBins)
	yOut = make([]float64, nBins)
	if len(x) == 0 {
		for i := range yOut {
			yOut[i] = math.NaN()
		}
		return
	}
	lo, hi := floats.Min(x), floats.Max(x)
	dx := (hi - lo) / float64(nBins)
	start, stop := lo+dx/2, hi-dx/2
	for i := range xOut {
		if nBins == 1 {
			xOut[i] = start
			continue
		}
		xOut[i] = start + float64(i)*(stop-start)/float64(nBins-1)
	}
	var bin []float64
	for i, xo := range xOut {
		bin = bin[:0]
		for j := range x {
			if x[j] >= xo-dx/2 && x[j] < xo+dx/2 {
				bin = append(bin, y[j])
			}
		}
		switch {
		case len(bin) > 0:
			yOut[i] = percentile(bin, p)
		case i > 0:
			yOut[i] = yOut[i-1]
		default:
			yOut[i] = math.NaN()
		}
	}
	return
}

// histogram bins x into nBins equal-width bins spanning [min(x), max(x)].
// The last bin is closed on the right.
func histogram(x []float64, nBins int) (counts, centers []float64) {
	lo, hi := floats.Min(x), floats.Max(x)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	width := (hi - lo) / float64(nBins)
	counts = make([]float64, nBins)
	centers = make([]float64, nBins)
	for i := range centers {
		centers[i] = lo + (float64(i)+0.5)*width
	}
	for _, v := range x {
		i := int((v - lo) / width)
		if i >= nBins {
			i = nBins - 1
		}
		if i < 0 {
			i = 0
		}
		counts[i]++
	}
	return
}

// geneStats holds the variability statistics of the genes expressed in at
// least one barcode.
type geneStats struct {
	// Genes are column indexes into the cell x gene matrix.
	Genes  []int
	Mean   []float64
	FF     []float64
	VScore []float64
	A, B   float64
}

// vScores fits the fano factor of each gene against its mean with the
// noise model FF = (1+a)(1+b) + b*mean and scores each gene by the ratio of
// its fano factor to the fit. counts is cell x gene.
func vScores(counts *mtx.CSR) (geneStats, error) {
	var gs geneStats
	n := float64(counts.NRows)
	sum := make([]float64, counts.NCols)
	sumSq := make([]float64, counts.NCols)
	for i := 0; i < counts.NRows; i++ {
		cols, vals := counts.Row(i)
		for k, j := range cols {
			sum[j] += vals[k]
			sumSq[j] += vals[k] * vals[k]
		}
	}
	for j := range sum {
		mu := sum[j] / n
		if mu <= 0 {
			continue
		}
		v := sumSq[j]/n - mu*mu
		gs.Genes = append(gs.Genes, j)
		gs.Mean = append(gs.Mean, mu)
		gs.FF = append(gs.FF, v/mu)
	}
	if len(gs.Genes) == 0 {
		return gs, errors.E(errors.Precondition, "no expressed genes")
	}

	dataX := make([]float64, len(gs.Genes))
	dataY := make([]float64, len(gs.Genes))
	logFF := make([]float64, 0, len(gs.Genes))
	for i := range gs.Genes {
		dataX[i] = math.Log(gs.Mean[i])
		dataY[i] = math.Log(gs.FF[i] / gs.Mean[i])
		if l := math.Log(gs.FF[i]); !math.IsInf(l, 0) && !math.IsNaN(l) {
			logFF = append(logFF, l)
		}
	}
	qx, qy := runningQuantile(dataX, dataY, 0.1, 50)
	var fitX, fitY []float64
	for i := range qy {
		if math.IsNaN(qy[i]) || math.IsInf(qy[i], 0) {
			continue
		}
		fitX = append(fitX, qx[i])
		fitY = append(fitY, qy[i])
	}

	c := 1.0
	if len(logFF) > 0 {
		h, centers := histogram(logFF, 200)
		c = math.Max(math.Exp(centers[floats.MaxIdx(h)]), 1)
	}
	b := 0.1
	if len(fitX) > 0 {
		b = fitNoise(fitX, fitY, c)
	}
	a := c/(1+b) - 1
	gs.A, gs.B = a, b
	gs.VScore = make([]float64, len(gs.Genes))
	for i := range gs.VScore {
		gs.VScore[i] = gs.FF[i] / ((1+a)*(1+b) + b*gs.Mean[i])
	}
	return gs, nil
}

// fitNoise minimizes sum |log(c*exp(-x) + b) - y| over b with Nelder-Mead,
// starting at b = 0.1.
func fitNoise(x, y []float64, c float64) float64 {
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var e float64
			for i := range x {
				arg := c*math.Exp(-x[i]) + p[0]
				if arg <= 0 {
					return math.Inf(1)
				}
				e += math.Abs(math.Log(arg) - y[i])
			}
			return e
		},
	}
	result, err := optimize.Minimize(problem, []float64{0.1}, nil, &optimize.NelderMead{})
	if result == nil || math.IsNaN(result.X[0]) {
		log.Error.Printf("noise model fit failed, using b = 0.1: %v", err)
		return 0.1
	}
	return result.X[0]
}

// filterGenes returns the column indexes of the highly variable genes of a
// cell x gene matrix: v-score at or above the pctl-th percentile of positive
// v-scores, and at least minCounts in at least minCells barcodes.
func filterGenes(counts *mtx.CSR, minCounts float64, minCells int, pctl float64) ([]int, error) {
	gs, err := vScores(counts)
	if err != nil {
		return nil, err
	}
	var positive []float64
	for _, v := range gs.VScore {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return nil, errors.E(errors.Precondition, "no gene has a positive v-score")
	}
	minV := percentile(positive, pctl)

	cells := make([]int, counts.NCols)
	for i := 0; i < counts.NRows; i++ {
		cols, vals := counts.Row(i)
		for k, j := range cols {
			if vals[k] >= minCounts {
				cells[j]++
			}
		}
	}
	if minCounts <= 0 {
		// Implicit zeros also satisfy the threshold.
		for j := range cells {
			cells[j] = counts.NRows
		}
	}

	var genes []int
	for i, j := range gs.Genes {
		v := gs.VScore[i]
		if v > 0 && v >= minV && cells[j] >= minCells {
			genes = append(genes, j)
		}
	}
	if len(genes) == 0 {
		return nil, errors.E(errors.Precondition, "no gene passes the variability filter")
	}
	return genes, nil
}
