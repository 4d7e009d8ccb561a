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
	"math/rand"

	"github.com/grailbio/scrna/encoding/mtx"
)

// simulateDoublets sums the counts of random pairs of observed barcodes.
// counts is cell x gene and totals holds the raw library size of each
// barcode; the returned totals are the sums of the parents' totals.
func simulateDoublets(counts *mtx.CSR, totals []float64, ratio float64, seed int64) (*mtx.CSR, []float64) {
	n := counts.NRows
	nSim := int(float64(n) * ratio)
	r := rand.New(rand.NewSource(seed))
	sim := &mtx.CSR{
		NRows:  nSim,
		NCols:  counts.NCols,
		RowPtr: make([]int, nSim+1),
	}
	simTotals := make([]float64, nSim)
	for i := 0; i < nSim; i++ {
		p0, p1 := r.Intn(n), r.Intn(n)
		c0, v0 := counts.Row(p0)
		c1, v1 := counts.Row(p1)
		// Merge the two sorted rows.
		a, b := 0, 0
		for a < len(c0) || b < len(c1) {
			switch {
			case b == len(c1) || (a < len(c0) && c0[a] < c1[b]):
				sim.ColIdx = append(sim.ColIdx, c0[a])
				sim.Data = append(sim.Data, v0[a])
				a++
			case a == len(c0) || c1[b] < c0[a]:
				sim.ColIdx = append(sim.ColIdx, c1[b])
				sim.Data = append(sim.Data, v1[b])
				b++
			default:
				sim.ColIdx = append(sim.ColIdx, c0[a])
				sim.Data = append(sim.Data, v0[a]+v1[b])
				a++
				b++
			}
		}
		sim.RowPtr[i+1] = len(sim.ColIdx)
		simTotals[i] = totals[p0] + totals[p1]
	}
	return sim, simTotals
}
