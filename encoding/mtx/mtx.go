// Package mtx reads the count matrices written by cellranger: a Matrix
// Market coordinate file (matrix.mtx.gz, genes x barcodes) and the barcode
// list (barcodes.tsv.gz) naming its columns.
package mtx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	grailerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/scrna/util"
	"github.com/pkg/errors"
)

const banner = "%%MatrixMarket"

// Header is the first line of a Matrix Market file.
type Header struct {
	Object   string // "matrix"
	Format   string // "coordinate"
	Field    string // "integer", "real" or "pattern"
	Symmetry string // "general"
}

func parseHeader(line string) (Header, error) {
	f := strings.Fields(line)
	if len(f) != 5 || f[0] != banner {
		return Header{}, errors.Errorf("bad banner %q", line)
	}
	h := Header{
		Object:   strings.ToLower(f[1]),
		Format:   strings.ToLower(f[2]),
		Field:    strings.ToLower(f[3]),
		Symmetry: strings.ToLower(f[4]),
	}
	if h.Object != "matrix" || h.Format != "coordinate" {
		return h, errors.Errorf("unsupported matrix %s %s, want matrix coordinate", h.Object, h.Format)
	}
	switch h.Field {
	case "integer", "real", "pattern":
	default:
		return h, errors.Errorf("unsupported field %s", h.Field)
	}
	if h.Symmetry != "general" {
		return h, errors.Errorf("unsupported symmetry %s", h.Symmetry)
	}
	return h, nil
}

// Read parses a Matrix Market coordinate matrix. The result has the
// orientation of the file; cellranger writes genes as rows and barcodes as
// columns.
func Read(r io.Reader) (*CSR, error) {
	s := bufio.NewScanner(r)
	s.Buffer(nil, 1<<20)
	lineNo := 0
	next := func() (string, bool) {
		for s.Scan() {
			lineNo++
			line := strings.TrimSpace(s.Text())
			if line == "" || (lineNo > 1 && line[0] == '%') {
				continue
			}
			return line, true
		}
		return "", false
	}

	line, ok := next()
	if !ok {
		return nil, errors.Wrap(scanErr(s), "empty matrix market file")
	}
	h, err := parseHeader(line)
	if err != nil {
		return nil, err
	}
	if line, ok = next(); !ok {
		return nil, errors.Wrap(scanErr(s), "missing size line")
	}
	var nRows, nCols, nnz int
	if _, err := fmt.Sscan(line, &nRows, &nCols, &nnz); err != nil {
		return nil, errors.Wrapf(err, "line %d: bad size line %q", lineNo, line)
	}
	if nRows < 0 || nCols < 0 || nnz < 0 {
		return nil, errors.Errorf("line %d: negative size %q", lineNo, line)
	}

	nFields := 3
	if h.Field == "pattern" {
		nFields = 2
	}
	entries := make([]Entry, 0, nnz)
	for len(entries) < nnz {
		if line, ok = next(); !ok {
			return nil, errors.Wrapf(scanErr(s), "expected %d entries, found %d", nnz, len(entries))
		}
		f := strings.Fields(line)
		if len(f) != nFields {
			return nil, errors.Errorf("line %d: expected %d fields, found %q", lineNo, nFields, line)
		}
		i, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		j, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		if i < 1 || i > nRows || j < 1 || j > nCols {
			return nil, errors.Errorf("line %d: entry (%d, %d) outside %dx%d matrix", lineNo, i, j, nRows, nCols)
		}
		v := 1.0
		if nFields == 3 {
			if v, err = strconv.ParseFloat(f[2], 64); err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
		}
		entries = append(entries, Entry{Row: i - 1, Col: j - 1, Val: v})
	}
	if line, ok = next(); ok {
		return nil, errors.Errorf("line %d: data after %d entries", lineNo, nnz)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return NewCSR(nRows, nCols, entries), nil
}

func scanErr(s *bufio.Scanner) error {
	if err := s.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// Write writes m as an integer coordinate matrix. Values are rounded to
// integers. The pipeline only reads matrices; Write produces test fixtures
// and round-trip checks.
func Write(w io.Writer, m *CSR) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s matrix coordinate integer general\n", banner)
	fmt.Fprintf(bw, "%d %d %d\n", m.NRows, m.NCols, m.NNZ())
	for i := 0; i < m.NRows; i++ {
		cols, vals := m.Row(i)
		for k, c := range cols {
			fmt.Fprintf(bw, "%d %d %d\n", i+1, c+1, int64(vals[k]))
		}
	}
	return bw.Flush()
}

// ReadBarcodes reads a barcode list, one barcode per line. Only the first
// tab-separated column is used.
func ReadBarcodes(r io.Reader) ([]string, error) {
	tr := tsv.NewReader(r)
	var barcodes []string
	for {
		var row struct{ Barcode string }
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "barcode %d", len(barcodes)+1)
		}
		barcodes = append(barcodes, row.Barcode)
	}
	return barcodes, nil
}

// ReadFile reads the matrix at path, decompressing ".gz" files.
func ReadFile(ctx context.Context, path string) (m *CSR, err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err2 := in.Close(); err == nil && err2 != nil {
			err = grailerrors.E(err2, "close", path)
		}
	}()
	if m, err = Read(in); err != nil {
		return nil, grailerrors.E(grailerrors.Invalid, err, path)
	}
	return m, nil
}

// ReadBarcodesFile reads the barcode list at path, decompressing ".gz"
// files.
func ReadBarcodesFile(ctx context.Context, path string) (barcodes []string, err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err2 := in.Close(); err == nil && err2 != nil {
			err = grailerrors.E(err2, "close", path)
		}
	}()
	if barcodes, err = ReadBarcodes(in); err != nil {
		return nil, grailerrors.E(grailerrors.Invalid, err, path)
	}
	return barcodes, nil
}
