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

package doublet

import (
	"context"
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Record is one scored barcode.
type Record struct {
	Barcode   string  `csv:"barcodes"`
	Score     float64 `csv:"scrublet_doublet_scores"`
	Predicted Call    `csv:"scrublet_predicted_doublet"`
}

// Call is the doublet prediction of a barcode. It is written as True or
// False, or left empty when no threshold could be set.
type Call int8

const (
	// NoCall means the barcode was scored but not called.
	NoCall Call = iota
	Singlet
	Doublet
)

// NewCall returns Doublet if doublet is true and Singlet otherwise.
func NewCall(doublet bool) Call {
	if doublet {
		return Doublet
	}
	return Singlet
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (c Call) MarshalCSV() (string, error) {
	switch c {
	case Doublet:
		return "True", nil
	case Singlet:
		return "False", nil
	}
	return "", nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (c *Call) UnmarshalCSV(s string) error {
	switch s {
	case "True", "true":
		*c = Doublet
	case "False", "false":
		*c = Singlet
	case "":
		*c = NoCall
	default:
		return fmt.Errorf("invalid prediction %q", s)
	}
	return nil
}

// WriteRecords writes records as CSV with a header row.
func WriteRecords(ctx context.Context, path string, records []Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = errors.E(err2, "close", path)
		}
	}()
	if err = gocsv.Marshal(&records, out.Writer(ctx)); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

// ReadRecords reads a CSV written by WriteRecords, for consumers of the
// scores and round-trip checks.
func ReadRecords(ctx context.Context, path string) (records []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer func() {
		if err2 := in.Close(ctx); err == nil && err2 != nil {
			err = errors.E(err2, "close", path)
		}
	}()
	if err = gocsv.Unmarshal(in.Reader(ctx), &records); err != nil {
		return nil, errors.E(errors.Invalid, err, "parse", path)
	}
	return records, nil
}
