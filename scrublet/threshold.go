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
	"github.com/grailbio/base/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrNoThreshold reports that the simulated doublet scores are not bimodal,
// so no threshold can be placed between the modes.
var ErrNoThreshold = errors.E(errors.Precondition, "simulated doublet scores are not bimodal; set a threshold manually")

const (
	thresholdBins    = 256
	thresholdMaxIter = 10000
)

// minimumThreshold places a threshold at the minimum between the two modes
// of the histogram of x. The histogram is smoothed with a width-3 running
// mean until it has at most two local maxima.
func minimumThreshold(x []float64) (float64, error) {
	if len(x) == 0 {
		return 0, ErrNoThreshold
	}
	h, centers := histogram(x, thresholdBins)
	smooth := append([]float64(nil), h...)
	var maxima []int
	iter := 0
	for ; iter < thresholdMaxIter; iter++ {
		smooth = runningMean3(smooth)
		maxima = localMaxima(smooth)
		if len(maxima) < 3 {
			break
		}
	}
	if len(maxima) != 2 || iter == thresholdMaxIter {
		return 0, ErrNoThreshold
	}
	lo, hi := maxima[0], maxima[1]
	return centers[lo+floats.MinIdx(smooth[lo:hi+1])], nil
}

// runningMean3 averages each bin with its neighbors, mirroring the edge
// bins.
func runningMean3(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		l, r := i-1, i+1
		if l < 0 {
			l = 0
		}
		if r >= len(x) {
			r = len(x) - 1
		}
		out[i] = (x[l] + x[i] + x[r]) / 3
	}
	return out
}

// localMaxima returns the peaks of x. A plateau counts once, at its last
// index.
func localMaxima(x []float64) []int {
	var maxima []int
	direction := 1
	for i := 0; i < len(x)-1; i++ {
		if direction > 0 {
			if x[i+1] < x[i] {
				direction = -1
				maxima = append(maxima, i)
			}
		} else if x[i+1] > x[i] {
			direction = 1
		}
	}
	return maxima
}
