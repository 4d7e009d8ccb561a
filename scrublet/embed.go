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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/scrna/encoding/mtx"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// zscorer standardizes genes by the mean and population standard deviation
// of the observed barcodes.
type zscorer struct {
	mean, sd []float64
}

func newZScorer(obs *mtx.CSR) zscorer {
	n := float64(obs.NRows)
	z := zscorer{mean: make([]float64, obs.NCols), sd: make([]float64, obs.NCols)}
	sumSq := make([]float64, obs.NCols)
	for i := 0; i < obs.NRows; i++ {
		cols, vals := obs.Row(i)
		for k, j := range cols {
			z.mean[j] += vals[k]
			sumSq[j] += vals[k] * vals[k]
		}
	}
	for j := range z.mean {
		z.mean[j] /= n
		v := sumSq[j]/n - z.mean[j]*z.mean[j]
		if v <= 0 {
			z.sd[j] = 1
			continue
		}
		z.sd[j] = math.Sqrt(v)
	}
	return z
}

// dense returns the standardized rows [lo, hi) of m.
func (z zscorer) dense(m *mtx.CSR, lo, hi int) *mat.Dense {
	d := mat.NewDense(hi-lo, m.NCols, nil)
	for i := lo; i < hi; i++ {
		row := d.RawRowView(i - lo)
		for j := range row {
			row[j] = -z.mean[j] / z.sd[j]
		}
		cols, vals := m.Row(i)
		for k, j := range cols {
			row[j] = (vals[k] - z.mean[j]) / z.sd[j]
		}
	}
	return d
}

// projectChunk is the number of simulated doublets standardized at a time.
const projectChunk = 1024

// embedding projects observed and simulated barcodes on the first principal
// components of the observed ones.
type embedding struct {
	obs, sim *mat.Dense
}

// embed fits the principal components of the standardized observed
// barcodes and projects both sets on the first nComps of them.
func embed(z zscorer, obs, sim *mtx.CSR, nComps int) (embedding, error) {
	obsZ := z.dense(obs, 0, obs.NRows)
	n, d := obsZ.Dims()
	var pc stat.PC
	if !pc.PrincipalComponents(obsZ, nil) {
		return embedding{}, errors.E(errors.Precondition, "principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, avail := vecs.Dims()
	k := nComps
	if k <= 0 || k > avail {
		k = avail
	}
	if k > n {
		k = n
	}
	if k > d {
		k = d
	}
	basis := vecs.Slice(0, d, 0, k)

	mean := make([]float64, d)
	for j := range mean {
		mean[j] = stat.Mean(mat.Col(nil, j, obsZ), nil)
	}
	center(obsZ, mean)
	var emb embedding
	emb.obs = &mat.Dense{}
	emb.obs.Mul(obsZ, basis)

	emb.sim = mat.NewDense(sim.NRows, k, nil)
	for lo := 0; lo < sim.NRows; lo += projectChunk {
		hi := lo + projectChunk
		if hi > sim.NRows {
			hi = sim.NRows
		}
		chunk := z.dense(sim, lo, hi)
		center(chunk, mean)
		emb.sim.Slice(lo, hi, 0, k).(*mat.Dense).Mul(chunk, basis)
	}
	return emb, nil
}

// center subtracts mean from every row of x.
func center(x *mat.Dense, mean []float64) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] -= mean[j]
		}
	}
}
