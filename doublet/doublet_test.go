package doublet

import (
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/encoding/mtx"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMatrix writes a gene x barcode matrix of nCells barcodes from three
// cell types, and its barcode list, under the cellranger layout of dir.
func writeMatrix(t *testing.T, matricesDir, subproject string, nCells int) []string {
	r := rand.New(rand.NewSource(3))
	const nGenes = 90
	var entries []mtx.Entry
	barcodes := make([]string, nCells)
	for c := 0; c < nCells; c++ {
		typ := c % 3
		for g := 0; g < nGenes; g++ {
			mean := 1
			if g/30 == typ {
				mean = 15
			}
			if n := r.Intn(2*mean + 1); n > 0 {
				entries = append(entries, mtx.Entry{Row: g, Col: c, Val: float64(n)})
			}
		}
		barcodes[c] = fmt.Sprintf("AAAC%06d-1", c)
	}
	m := mtx.NewCSR(nGenes, nCells, entries)

	dir := MatrixDir(matricesDir, subproject)
	require.NoError(t, os.MkdirAll(dir, 0777))
	writeGzip(t, MatrixPath(matricesDir, subproject), func(w *gzip.Writer) {
		require.NoError(t, mtx.Write(w, m))
	})
	writeGzip(t, BarcodesPath(matricesDir, subproject), func(w *gzip.Writer) {
		for _, bc := range barcodes {
			_, err := fmt.Fprintln(w, bc)
			require.NoError(t, err)
		}
	})
	return barcodes
}

func writeGzip(t *testing.T, path string, fn func(w *gzip.Writer)) {
	f, err := os.Create(path)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	fn(w)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestScore(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	opts := DefaultOpts
	opts.MatricesDir = filepath.Join(tmpDir, "results")
	opts.OutputDir = filepath.Join(tmpDir, "2020-09-22", "scrublet_scores")
	opts.Scrublet.Threshold = 0.3
	barcodes := writeMatrix(t, opts.MatricesDir, "SUB_01", 120)

	report, err := Score(ctx, "SUB_01", opts)
	require.NoError(t, err)
	expect.EQ(t, report.Path, filepath.Join(opts.OutputDir, "scrublet_doublet_prediction-SUB_01.csv"))
	require.Len(t, report.Records, len(barcodes))

	records, err := ReadRecords(ctx, report.Path)
	require.NoError(t, err)
	require.Len(t, records, len(barcodes))
	for i, rec := range records {
		expect.EQ(t, rec.Barcode, barcodes[i])
		assert.InDelta(t, report.Result.Scores[i], rec.Score, 1e-9)
		expect.EQ(t, rec.Predicted, NewCall(rec.Score > opts.Scrublet.Threshold))
	}

	text, err := ioutil.ReadFile(report.Path)
	require.NoError(t, err)
	assert.Regexp(t, `^barcodes,scrublet_doublet_scores,scrublet_predicted_doublet\nAAAC000000-1,[0-9.e-]+,(True|False)\n`, string(text))
}

func TestScoreMissingMatrix(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	opts := DefaultOpts
	opts.MatricesDir = tmpDir
	opts.OutputDir = filepath.Join(tmpDir, "out")
	_, err := Score(ctx, "nope", opts)
	assert.Error(t, err)
	_, err = os.Stat(opts.OutputDir)
	expect.True(t, os.IsNotExist(err))
}

func TestScoreBarcodeMismatch(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	opts := DefaultOpts
	opts.MatricesDir = tmpDir
	opts.OutputDir = filepath.Join(tmpDir, "out")
	writeMatrix(t, tmpDir, "A", 30)
	writeGzip(t, BarcodesPath(tmpDir, "A"), func(w *gzip.Writer) {
		_, err := fmt.Fprintln(w, "AAAC-1")
		require.NoError(t, err)
	})
	_, err := Score(ctx, "A", opts)
	expect.True(t, errors.Is(errors.Integrity, err))
}

func TestCall(t *testing.T) {
	for _, test := range []struct {
		call Call
		text string
	}{
		{Doublet, "True"},
		{Singlet, "False"},
		{NoCall, ""},
	} {
		s, err := test.call.MarshalCSV()
		assert.NoError(t, err)
		expect.EQ(t, s, test.text)
		var c Call
		assert.NoError(t, c.UnmarshalCSV(test.text))
		expect.EQ(t, c, test.call)
	}
	var c Call
	assert.Error(t, c.UnmarshalCSV("yes"))
	expect.EQ(t, NewCall(true), Doublet)
	expect.EQ(t, NewCall(false), Singlet)
}

func TestWriteRecordsUncalled(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	path := filepath.Join(tmpDir, "scores.csv")
	records := []Record{
		{Barcode: "AAAC-1", Score: 0.25},
		{Barcode: "AAAG-1", Score: 0.5},
	}
	require.NoError(t, WriteRecords(ctx, path, records))
	text, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	expect.EQ(t, string(text), "barcodes,scrublet_doublet_scores,scrublet_predicted_doublet\nAAAC-1,0.25,\nAAAG-1,0.5,\n")

	got, err := ReadRecords(ctx, path)
	require.NoError(t, err)
	expect.EQ(t, got, records)
}
