package mtx

import "sort"

// CSR is a sparse matrix in compressed sparse row form. The column indices
// of a row are strictly increasing.
type CSR struct {
	NRows, NCols int
	// RowPtr has NRows+1 entries; row i occupies [RowPtr[i], RowPtr[i+1]) of
	// ColIdx and Data.
	RowPtr []int
	ColIdx []int
	Data   []float64
}

// Entry is one stored value of a sparse matrix, zero-based.
type Entry struct {
	Row, Col int
	Val      float64
}

// NewCSR builds a CSR matrix from entries in any order. Duplicate
// coordinates are summed.
func NewCSR(nRows, nCols int, entries []Entry) *CSR {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})
	m := &CSR{
		NRows:  nRows,
		NCols:  nCols,
		RowPtr: make([]int, nRows+1),
		ColIdx: make([]int, 0, len(sorted)),
		Data:   make([]float64, 0, len(sorted)),
	}
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Row == e.Row && sorted[i-1].Col == e.Col {
			m.Data[len(m.Data)-1] += e.Val
			continue
		}
		m.ColIdx = append(m.ColIdx, e.Col)
		m.Data = append(m.Data, e.Val)
		m.RowPtr[e.Row+1]++
	}
	for i := 0; i < nRows; i++ {
		m.RowPtr[i+1] += m.RowPtr[i]
	}
	return m
}

// NNZ is the number of stored values.
func (m *CSR) NNZ() int { return len(m.Data) }

// Row returns the column indices and values stored in row i. The slices
// alias the matrix.
func (m *CSR) Row(i int) ([]int, []float64) {
	lo, hi := m.RowPtr[i], m.RowPtr[i+1]
	return m.ColIdx[lo:hi], m.Data[lo:hi]
}

// At returns the value at (i, j).
func (m *CSR) At(i, j int) float64 {
	cols, vals := m.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	return 0
}

// T returns the transpose of m as a new CSR matrix. A genes x barcodes
// matrix becomes barcodes x genes, with one row per barcode.
func (m *CSR) T() *CSR {
	t := &CSR{
		NRows:  m.NCols,
		NCols:  m.NRows,
		RowPtr: make([]int, m.NCols+1),
		ColIdx: make([]int, len(m.ColIdx)),
		Data:   make([]float64, len(m.Data)),
	}
	for _, c := range m.ColIdx {
		t.RowPtr[c+1]++
	}
	for i := 0; i < t.NRows; i++ {
		t.RowPtr[i+1] += t.RowPtr[i]
	}
	next := make([]int, t.NRows)
	copy(next, t.RowPtr[:t.NRows])
	// Visiting rows of m in order keeps the columns of t sorted.
	for i := 0; i < m.NRows; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			c := m.ColIdx[k]
			t.ColIdx[next[c]] = i
			t.Data[next[c]] = m.Data[k]
			next[c]++
		}
	}
	return t
}

// RowSums returns the sum of each row.
func (m *CSR) RowSums() []float64 {
	sums := make([]float64, m.NRows)
	for i := range sums {
		_, vals := m.Row(i)
		for _, v := range vals {
			sums[i] += v
		}
	}
	return sums
}

// ScaleRows returns a copy of m with row i multiplied by w[i].
func (m *CSR) ScaleRows(w []float64) *CSR {
	s := &CSR{
		NRows:  m.NRows,
		NCols:  m.NCols,
		RowPtr: m.RowPtr,
		ColIdx: m.ColIdx,
		Data:   make([]float64, len(m.Data)),
	}
	for i := 0; i < m.NRows; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			s.Data[k] = m.Data[k] * w[i]
		}
	}
	return s
}

// SelectCols returns the submatrix made of the given columns, renumbered
// 0..len(cols)-1 in the order given. cols must be strictly increasing.
func (m *CSR) SelectCols(cols []int) *CSR {
	newIdx := make([]int, m.NCols)
	for i := range newIdx {
		newIdx[i] = -1
	}
	for i, c := range cols {
		newIdx[c] = i
	}
	s := &CSR{NRows: m.NRows, NCols: len(cols), RowPtr: make([]int, m.NRows+1)}
	for i := 0; i < m.NRows; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			if j := newIdx[m.ColIdx[k]]; j >= 0 {
				s.ColIdx = append(s.ColIdx, j)
				s.Data = append(s.Data, m.Data[k])
			}
		}
		s.RowPtr[i+1] = len(s.ColIdx)
	}
	return s
}
