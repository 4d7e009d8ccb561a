package scrublet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/scrna/encoding/mtx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func poisson(r *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= r.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

const (
	nTypes       = 3
	cellsPerType = 50
	markersPer   = 20
	nBackground  = 40
	nDoublets    = 15
)

// synthetic returns a barcode x gene matrix of three cell types, each
// expressing its own block of marker genes, followed by nDoublets barcodes
// mixing two types.
func synthetic() *mtx.CSR {
	r := rand.New(rand.NewSource(1))
	nGenes := nTypes*markersPer + nBackground
	profile := func(typ int) []float64 {
		p := make([]float64, nGenes)
		for j := range p {
			switch {
			case j >= nTypes*markersPer:
				p[j] = 2
			case j/markersPer == typ:
				p[j] = 20
			default:
				p[j] = 0.5
			}
		}
		return p
	}
	var entries []mtx.Entry
	row := 0
	add := func(lambda []float64) {
		for j, l := range lambda {
			if n := poisson(r, l); n > 0 {
				entries = append(entries, mtx.Entry{Row: row, Col: j, Val: float64(n)})
			}
		}
		row++
	}
	for typ := 0; typ < nTypes; typ++ {
		for i := 0; i < cellsPerType; i++ {
			add(profile(typ))
		}
	}
	for i := 0; i < nDoublets; i++ {
		a, b := profile(i%nTypes), profile((i+1)%nTypes)
		for j := range a {
			a[j] += b[j]
		}
		add(a)
	}
	return mtx.NewCSR(row, nGenes, entries)
}

func TestScrub(t *testing.T) {
	counts := synthetic()
	opts := DefaultOpts
	opts.Threshold = 0.25
	res, err := Scrub(counts, opts)
	require.NoError(t, err)

	n := counts.NRows
	assert.Len(t, res.Scores, n)
	assert.Len(t, res.Predicted, n)
	assert.Len(t, res.Z, n)
	assert.Len(t, res.SimScores, 2*n)
	assert.Equal(t, 0.25, res.Threshold)
	assert.True(t, res.Called)
	k := int(math.RoundToEven(0.5 * math.Sqrt(float64(n))))
	assert.Equal(t, k*3, res.NNeighbors)
	assert.NotEmpty(t, res.Genes)

	var detected int
	for i, s := range res.Scores {
		assert.True(t, s > 0 && s < 1, "score %d = %v", i, s)
		assert.Equal(t, s > res.Threshold, res.Predicted[i], "barcode %d", i)
		if res.Predicted[i] {
			detected++
		}
	}
	assert.InDelta(t, float64(detected)/float64(n), res.DetectedRate, 1e-12)

	var singlet, doublet float64
	nSinglets := nTypes * cellsPerType
	for i, s := range res.Scores {
		if i < nSinglets {
			singlet += s / float64(nSinglets)
		} else {
			doublet += s / nDoublets
		}
	}
	assert.True(t, doublet > singlet, "mean doublet score %v <= mean singlet score %v", doublet, singlet)

	// Same seed, same scores.
	res2, err := Scrub(counts, opts)
	require.NoError(t, err)
	assert.Equal(t, res.Scores, res2.Scores)
}

// mixture returns a barcode x gene matrix of nSinglets barcodes drawn from
// nTypes cell types, each with its own block of 50 marker genes, followed by
// nDoublets barcodes summing two different types.
func mixture(seed int64, nTypes, nSinglets, nDoublets, nGenes int) *mtx.CSR {
	r := rand.New(rand.NewSource(seed))
	const markers = 50
	lambda := func(typ, gene int) float64 {
		switch {
		case gene >= nTypes*markers:
			return 1
		case gene/markers == typ:
			return 10
		default:
			return 0.2
		}
	}
	var entries []mtx.Entry
	for i := 0; i < nSinglets+nDoublets; i++ {
		a, b := i%nTypes, -1
		if i >= nSinglets {
			b = (a + 1 + r.Intn(nTypes-1)) % nTypes
		}
		for g := 0; g < nGenes; g++ {
			l := lambda(a, g)
			if b >= 0 {
				l += lambda(b, g)
			}
			if n := poisson(r, l); n > 0 {
				entries = append(entries, mtx.Entry{Row: i, Col: g, Val: float64(n)})
			}
		}
	}
	return mtx.NewCSR(nSinglets+nDoublets, nGenes, entries)
}

func TestScrubAutoThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("exact neighbor search over 4500 barcodes")
	}
	const (
		nSinglets = 1500
		nDoublets = 90
	)
	for seed := int64(1); seed <= 2; seed++ {
		counts := mixture(seed, 6, nSinglets, nDoublets, 800)
		opts := DefaultOpts
		opts.Seed = seed
		res, err := Scrub(counts, opts)
		require.NoError(t, err)
		require.True(t, res.Called, "seed %d", seed)
		assert.True(t, res.Threshold > 0 && res.Threshold < 1, "seed %d threshold %v", seed, res.Threshold)

		var truePos, falsePos int
		for i, s := range res.Scores {
			assert.Equal(t, s > res.Threshold, res.Predicted[i], "seed %d barcode %d", seed, i)
			assert.InDelta(t, (s-res.Threshold)/res.Errors[i], res.Z[i], 1e-9)
			if res.Predicted[i] {
				if i >= nSinglets {
					truePos++
				} else {
					falsePos++
				}
			}
		}
		assert.True(t, truePos > nDoublets/2, "seed %d: %d of %d doublets called", seed, truePos, nDoublets)
		assert.True(t, falsePos < nSinglets/20, "seed %d: %d singlets called", seed, falsePos)

		var detectable int
		for _, s := range res.SimScores {
			if s > res.Threshold {
				detectable++
			}
		}
		assert.InDelta(t, float64(detectable)/float64(len(res.SimScores)), res.DetectableFraction, 1e-12)
		assert.InDelta(t, float64(truePos+falsePos)/float64(len(res.Scores)), res.DetectedRate, 1e-12)
	}
}

func TestResultCall(t *testing.T) {
	scores := []float64{0.01, 0.4, 0.02}
	errs := []float64{0.1, 0.1, 0.1}
	bimodal := append(triangular(300, 0, 0.05, 0.1), triangular(600, 0.3, 0.5, 0.7)...)

	res := Result{Scores: scores, Errors: errs, SimScores: bimodal}
	require.True(t, res.call(0))
	assert.True(t, res.Called)
	assert.True(t, res.Threshold > 0.1 && res.Threshold < 0.3, "threshold %v", res.Threshold)
	assert.Equal(t, []bool{false, true, false}, res.Predicted)
	assert.InDelta(t, 1.0/3, res.DetectedRate, 1e-12)
	assert.InDelta(t, 600.0/900, res.DetectableFraction, 1e-12)

	res = Result{Scores: scores, Errors: errs, SimScores: bimodal}
	require.True(t, res.call(0.015))
	assert.Equal(t, []bool{false, true, true}, res.Predicted)

	// Unimodal simulated scores leave the barcodes uncalled.
	same := make([]float64, 900)
	for i := range same {
		same[i] = 0.2
	}
	res = Result{Scores: scores, Errors: errs, SimScores: same}
	assert.False(t, res.call(0))
	assert.False(t, res.Called)
	assert.Nil(t, res.Predicted)
	assert.Equal(t, 0.0, res.Threshold)
}

func TestScrubErrors(t *testing.T) {
	one := mtx.NewCSR(1, 2, []mtx.Entry{{Row: 0, Col: 0, Val: 1}})
	_, err := Scrub(one, DefaultOpts)
	assert.True(t, errors.Is(errors.Precondition, err), "%v", err)

	empty := mtx.NewCSR(3, 2, []mtx.Entry{{Row: 0, Col: 0, Val: 1}, {Row: 1, Col: 1, Val: 2}})
	_, err = Scrub(empty, DefaultOpts)
	assert.True(t, errors.Is(errors.Precondition, err), "%v", err)

	opts := DefaultOpts
	opts.ExpectedDoubletRate = 1.5
	_, err = Scrub(synthetic(), opts)
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestPercentile(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	assert.Equal(t, 1.0, percentile(x, 0))
	assert.Equal(t, 2.5, percentile(x, 50))
	assert.Equal(t, 3.25, percentile(x, 75))
	assert.Equal(t, 4.0, percentile(x, 100))
	assert.Equal(t, []float64{4, 1, 3, 2}, x)
	assert.True(t, math.IsNaN(percentile(nil, 50)))
}

func TestRunningQuantile(t *testing.T) {
	var x []float64
	for i := 0; i < 10; i++ {
		x = append(x, float64(i))
	}
	xOut, yOut := runningQuantile(x, x, 50, 2)
	assert.Equal(t, []float64{2.25, 6.75}, xOut)
	assert.Equal(t, []float64{2, 6.5}, yOut)
}

func TestSimulateDoublets(t *testing.T) {
	counts := mtx.NewCSR(3, 4, []mtx.Entry{
		{Row: 0, Col: 0, Val: 1}, {Row: 0, Col: 2, Val: 2},
		{Row: 1, Col: 1, Val: 3}, {Row: 1, Col: 2, Val: 1},
		{Row: 2, Col: 3, Val: 5},
	})
	totals := counts.RowSums()
	sim, simTotals := simulateDoublets(counts, totals, 2, 7)
	assert.Equal(t, 6, sim.NRows)
	assert.Equal(t, 4, sim.NCols)
	assert.Equal(t, simTotals, sim.RowSums())
	for i := 0; i < sim.NRows; i++ {
		cols, _ := sim.Row(i)
		for k := 1; k < len(cols); k++ {
			assert.True(t, cols[k-1] < cols[k], "row %d columns %v", i, cols)
		}
	}
	sim2, _ := simulateDoublets(counts, totals, 2, 7)
	assert.Equal(t, sim, sim2)
}

func TestEmbedChunks(t *testing.T) {
	obs := synthetic()
	// Simulated rows repeat the observed ones and span several chunks.
	nSim := 2*projectChunk + 100
	var entries []mtx.Entry
	for i := 0; i < nSim; i++ {
		cols, vals := obs.Row(i % obs.NRows)
		for k, j := range cols {
			entries = append(entries, mtx.Entry{Row: i, Col: j, Val: vals[k]})
		}
	}
	sim := mtx.NewCSR(nSim, obs.NCols, entries)

	emb, err := embed(newZScorer(obs), obs, sim, 10)
	require.NoError(t, err)
	r, c := emb.sim.Dims()
	require.Equal(t, nSim, r)
	require.Equal(t, 10, c)
	for i := 0; i < nSim; i++ {
		for j := 0; j < c; j++ {
			assert.InDelta(t, emb.obs.At(i%obs.NRows, j), emb.sim.At(i, j), 1e-9, "row %d col %d", i, j)
		}
	}
}

func TestCountSimNeighbors(t *testing.T) {
	points := mat.NewDense(5, 1, []float64{0, 1, 2, 10, 11})
	for _, test := range []struct {
		k    int
		want []int
	}{
		{1, []int{0, 0, 0, 1, 1}},
		{2, []int{0, 0, 0, 1, 1}},
		{3, []int{1, 1, 1, 1, 1}},
	} {
		got, err := countSimNeighbors(points, 3, test.k, 2)
		require.NoError(t, err)
		assert.Equal(t, test.want, got, "k=%d", test.k)
	}
}

func TestDoubletScore(t *testing.T) {
	prev := 0.0
	for nd := 0; nd <= 18; nd++ {
		s, se := doubletScore(nd, 18, 2, 0.04, 0.02)
		assert.True(t, s > prev && s < 1, "nd=%d score %v", nd, s)
		assert.True(t, se > 0, "nd=%d se %v", nd, se)
		prev = s
	}
}

func TestLocalMaxima(t *testing.T) {
	assert.Equal(t, []int{2, 6}, localMaxima([]float64{0, 1, 2, 1, 0, 3, 3, 1}))
	assert.Empty(t, localMaxima([]float64{1, 1, 1}))
	assert.Equal(t, []float64{1, 2, 3}, runningMean3([]float64{0, 3, 3}))
}

// triangular returns n evenly spaced quantiles of the triangular
// distribution on [a, b] with mode c.
func triangular(n int, a, c, b float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		u := (float64(i) + 0.5) / float64(n)
		if u < (c-a)/(b-a) {
			x[i] = a + math.Sqrt(u*(b-a)*(c-a))
		} else {
			x[i] = b - math.Sqrt((1-u)*(b-a)*(b-c))
		}
	}
	return x
}

func TestMinimumThreshold(t *testing.T) {
	x := append(triangular(500, 0, 0.15, 0.3), triangular(200, 0.6, 0.8, 1)...)
	thr, err := minimumThreshold(x)
	require.NoError(t, err)
	assert.True(t, thr > 0.3 && thr < 0.6, "threshold %v", thr)

	same := make([]float64, 700)
	for i := range same {
		same[i] = 0.3
	}
	_, err = minimumThreshold(same)
	assert.Equal(t, ErrNoThreshold, err)
}
