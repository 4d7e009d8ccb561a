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

// Opts configures Scrub.
type Opts struct {
	// ExpectedDoubletRate is the fraction of barcodes expected to be
	// doublets. It depends on the number of cells loaded per channel; 0.04
	// is typical for a non-hashed 10x library of ~5000 cells.
	ExpectedDoubletRate float64
	// StdevDoubletRate is the uncertainty of ExpectedDoubletRate.
	StdevDoubletRate float64
	// SimDoubletRatio is the number of simulated doublets relative to the
	// number of observed barcodes.
	SimDoubletRatio float64
	// NNeighbors is the neighborhood size, before adjusting for the
	// simulated doublets. 0 means round(0.5*sqrt(#barcodes)).
	NNeighbors int

	// MinCounts and MinCells keep genes with at least MinCounts normalized
	// counts in at least MinCells barcodes.
	MinCounts float64
	MinCells  int
	// MinGeneVariabilityPctl keeps genes whose v-score is at or above this
	// percentile.
	MinGeneVariabilityPctl float64
	// NPrinComps is the dimension of the PCA embedding.
	NPrinComps int

	// Threshold on the doublet score. 0 means detect it from the bimodal
	// distribution of simulated doublet scores.
	Threshold float64
	// Seed seeds doublet simulation.
	Seed int64
	// Parallelism bounds the number of concurrent neighbor searches. 0 means
	// runtime.NumCPU().
	Parallelism int
}

// DefaultOpts are the settings used for 10x 3' libraries.
var DefaultOpts = Opts{
	ExpectedDoubletRate:    0.04,
	StdevDoubletRate:       0.02,
	SimDoubletRatio:        2.0,
	MinCounts:              2,
	MinCells:               3,
	MinGeneVariabilityPctl: 75,
	NPrinComps:             30,
}

// postNormTotal is the library size every barcode is scaled to before the
// z-score.
const postNormTotal = 1e6
