// Package fastq reads and writes FASTQ files. It is used to check the
// fastq pairs handed to cellranger.
package fastq

import (
	"bufio"
	"errors"
	"io"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when two underlying FASTQ files are discordant.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// maxLineLen bounds the length of a single FASTQ line. Long-read headers
// can exceed bufio's 64KiB default.
const maxLineLen = 1 << 20

// A Read is a FASTQ record: the ID line, sequence, separator line ("+",
// optionally followed by the ID) and quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Field enumerates FASTQ fields. It selects the fields NewScanner fills in.
type Field uint

const (
	// ID causes the Read.ID field to be filled
	ID Field = 1 << iota
	// Seq causes the Read.Seq field to be filled
	Seq
	// Unk causes the Read.Unk field to be filled
	Unk
	// Qual causes the Read.Qual field to be filled
	Qual
	// All equals ID|Seq|Unk|Qual.
	All = ID | Seq | Unk | Qual
)

var errEOF = errors.New("eof")

// Scanner reads FASTQ records. It checks that ID lines start with '@' and
// separator lines with '+', and nothing else. Scanners are not threadsafe.
type Scanner struct {
	b      *bufio.Scanner
	fields Field
	err    error
	n      int64
}

// NewScanner returns a Scanner reading uncompressed FASTQ from r, filling
// the given fields.
func NewScanner(r io.Reader, fields Field) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, maxLineLen)
	return &Scanner{b: b, fields: fields}
}

// Scan reads the next record into read. It returns false at the end of the
// stream or on error; Err distinguishes the two. Once Scan returns false it
// never returns true again.
func (s *Scanner) Scan(read *Read) bool {
	if s.err != nil {
		return false
	}
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errEOF
		}
		return false
	}
	if !s.line(&read.ID, ID, '@') || !s.next(&read.Seq, Seq, 0) ||
		!s.next(&read.Unk, Unk, '+') || !s.next(&read.Qual, Qual, 0) {
		return false
	}
	s.n++
	return true
}

// next advances to the following line of the current record, which must
// exist.
func (s *Scanner) next(dst *string, f Field, prefix byte) bool {
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = ErrShort
		}
		return false
	}
	return s.line(dst, f, prefix)
}

func (s *Scanner) line(dst *string, f Field, prefix byte) bool {
	b := s.b.Bytes()
	if prefix != 0 && (len(b) == 0 || b[0] != prefix) {
		s.err = ErrInvalid
		return false
	}
	if s.fields&f != 0 {
		*dst = string(b)
	}
	return true
}

// Count returns the number of records scanned so far.
func (s *Scanner) Count() int64 { return s.n }

// Err returns the scanning error, if any. Reaching the end of the stream is
// not an error.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}
