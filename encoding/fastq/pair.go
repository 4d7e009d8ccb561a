package fastq

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/scrna/util"
)

// PairScanner scans the R1 and R2 files of a paired-end library in step.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner creates a new FASTQ pair scanner from the provided
// R1 and R2 readers. ID is always filled in so that mates can be matched.
func NewPairScanner(r1, r2 io.Reader, fields Field) *PairScanner {
	return &PairScanner{
		r1: NewScanner(r1, fields|ID),
		r2: NewScanner(r2, fields|ID),
	}
}

// Scan reads the next pair into r1, r2. It fails with ErrDiscordant when one
// stream ends before the other or when the mates' names differ.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	if p.err != nil {
		return false
	}
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 || (ok1 && !SameFragment(r1.ID, r2.ID)) {
		p.err = ErrDiscordant
		return false
	}
	return ok1
}

// Err returns the scanning error, if any. It should be checked
// after Scan returns false.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}

// Count returns the number of pairs scanned so far.
func (p *PairScanner) Count() int64 { return p.r2.Count() }

// fragmentName returns the read name of an ID line: the text between '@'
// and the first whitespace, without a trailing /1 or /2.
func fragmentName(id string) string {
	id = strings.TrimPrefix(id, "@")
	if i := strings.IndexAny(id, " \t"); i >= 0 {
		id = id[:i]
	}
	if strings.HasSuffix(id, "/1") || strings.HasSuffix(id, "/2") {
		id = id[:len(id)-2]
	}
	return id
}

// SameFragment reports whether two ID lines name mates of the same fragment.
func SameFragment(id1, id2 string) bool {
	return fragmentName(id1) == fragmentName(id2)
}

// CountPairs scans the R1 and R2 fastqs at the given paths, which may be
// gzip-compressed, and returns the number of read pairs.
func CountPairs(ctx context.Context, r1Path, r2Path string) (n int64, err error) {
	in1, err := util.Open(ctx, r1Path)
	if err != nil {
		return 0, err
	}
	defer closeInto(&err, in1, r1Path)
	in2, err := util.Open(ctx, r2Path)
	if err != nil {
		return 0, err
	}
	defer closeInto(&err, in2, r2Path)

	s := NewPairScanner(in1, in2, ID)
	var r1, r2 Read
	for s.Scan(&r1, &r2) {
	}
	if err := s.Err(); err != nil {
		return s.Count(), errors.E(errors.Integrity, err, r1Path, r2Path)
	}
	return s.Count(), nil
}

func closeInto(err *error, c io.Closer, path string) {
	if err2 := c.Close(); *err == nil && err2 != nil {
		*err = errors.E(err2, "close", path)
	}
}
