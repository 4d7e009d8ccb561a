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

// Package manifest reads the LIMS sequencing manifest that describes which
// (flowcell, lane) pairs were sequenced for each library, and groups its rows
// into samples.
package manifest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/scrna/util"
)

// Pass is the value of a quality flag that lets a row contribute to its
// sample.
const Pass = "pass"

// ErrNoQualifyingRows is returned when every row of a sample fails the
// library or lane quality flag.
var ErrNoQualifyingRows = errors.E(errors.NotExist, "no manifest row passes both library and lane quality flags")

// Row is one sequencing lane of one library. Columns not listed here are
// ignored.
type Row struct {
	SampleName      string `tsv:"SampleName"`
	Library         string `tsv:"library"`
	Index           string `tsv:"index"`
	Flowcell        string `tsv:"flowcell"`
	Lane            string `tsv:"lane"`
	LibraryPassFail string `tsv:"libraryPassFail"`
	LanePassFail    string `tsv:"LanePassFail"`
}

// Passes reports whether both the library-level and the lane-level quality
// flags of the row are "pass".
func (r Row) Passes() bool {
	return r.LibraryPassFail == Pass && r.LanePassFail == Pass
}

// Parse reads manifest rows from a tab-separated stream with a header line.
// Columns are matched by header name.
func Parse(r io.Reader) ([]Row, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true

	var rows []Row
	for {
		var row Row
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("manifest row %d", len(rows)+1))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Read reads the manifest at path. Paths ending in ".gz" are decompressed.
func Read(ctx context.Context, path string) (rows []Row, err error) {
	in, err := util.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err2 := in.Close(); err == nil && err2 != nil {
			err = errors.E(err2, "close", path)
		}
	}()
	if rows, err = Parse(in); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("read %d manifest rows from %s", len(rows), path)
	return rows, nil
}

// NormalizeName removes all whitespace from a sample name so that it can be
// used as a directory name and as a cellranger sample id.
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
}

// Sample is the set of manifest rows that share a normalized sample name.
type Sample struct {
	// Name is the normalized sample name.
	Name string
	// Rows holds every row of the sample, in manifest order, regardless of
	// the quality flags.
	Rows []Row
}

// Qualifying returns the rows that pass both quality flags, in manifest
// order.
func (s Sample) Qualifying() []Row {
	var rows []Row
	for _, r := range s.Rows {
		if r.Passes() {
			rows = append(rows, r)
		}
	}
	return rows
}

// Representative returns the first qualifying row. Fields shared by all lanes
// of a library (library id, index) are read from it.
func (s Sample) Representative() (Row, error) {
	for _, r := range s.Rows {
		if r.Passes() {
			return r, nil
		}
	}
	return Row{}, errors.E(ErrNoQualifyingRows, "sample", s.Name)
}

// Samples groups rows by normalized sample name. The result is sorted by
// name; rows keep their manifest order within a sample.
func Samples(rows []Row) []Sample {
	index := map[string]int{}
	var samples []Sample
	for _, r := range rows {
		name := NormalizeName(r.SampleName)
		i, ok := index[name]
		if !ok {
			i = len(samples)
			index[name] = i
			samples = append(samples, Sample{Name: name})
		}
		samples[i].Rows = append(samples[i].Rows, r)
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples
}
