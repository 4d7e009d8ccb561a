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
	"container/heap"
	"runtime"

	"github.com/grailbio/base/traverse"
	"gonum.org/v1/gonum/mat"
)

type neighbor struct {
	dist float64
	idx  int
}

// farthestFirst is a max-heap of the k nearest neighbors found so far.
type farthestFirst []neighbor

func (h farthestFirst) Len() int { return len(h) }
func (h farthestFirst) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].idx > h[j].idx
}
func (h farthestFirst) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *farthestFirst) Push(x interface{}) { *h = append(*h, x.(neighbor)) }
func (h *farthestFirst) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// closer reports whether a sorts before the heap's farthest element.
func (h farthestFirst) closer(a neighbor) bool {
	top := h[0]
	return a.dist < top.dist || (a.dist == top.dist && a.idx < top.idx)
}

// countSimNeighbors finds, for every row of points, its k nearest other rows
// by Euclidean distance and counts those with index >= nObs. Ties are broken
// by index.
func countSimNeighbors(points *mat.Dense, nObs, k, parallelism int) ([]int, error) {
	n, _ := points.Dims()
	counts := make([]int, n)
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	const shardSize = 64
	nShards := (n + shardSize - 1) / shardSize
	err := traverse.T{Limit: parallelism}.Each(nShards, func(shard int) error {
		h := make(farthestFirst, 0, k)
		end := (shard + 1) * shardSize
		if end > n {
			end = n
		}
		for i := shard * shardSize; i < end; i++ {
			h = h[:0]
			pi := points.RawRowView(i)
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				pj := points.RawRowView(j)
				var d float64
				for c := range pi {
					diff := pi[c] - pj[c]
					d += diff * diff
				}
				nb := neighbor{dist: d, idx: j}
				if len(h) < k {
					heap.Push(&h, nb)
				} else if h.closer(nb) {
					h[0] = nb
					heap.Fix(&h, 0)
				}
			}
			for _, nb := range h {
				if nb.idx >= nObs {
					counts[i]++
				}
			}
		}
		return nil
	})
	return counts, err
}
