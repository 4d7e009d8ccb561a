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

package jobfs

import (
	"context"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Materializer produces fastq targets from the sequencing facility's files.
type Materializer interface {
	// Link makes dst refer to src without copying it.
	Link(ctx context.Context, src, dst string) error
	// Concat writes the bytes of srcs, in order, to dst.
	Concat(ctx context.Context, srcs []string, dst string) error
}

// Materialize runs the materializations of a plan. The two read directions
// have disjoint targets and run concurrently.
func Materialize(ctx context.Context, m Materializer, p Plan) error {
	return traverse.Each(len(p.Materializations), func(i int) error {
		mat := p.Materializations[i]
		switch mat.Kind {
		case Link:
			if len(mat.Sources) != 1 {
				return errors.E(errors.Invalid, "link", mat.Target, "needs exactly one source")
			}
			return m.Link(ctx, mat.Sources[0], mat.Target)
		case Concat:
			return m.Concat(ctx, mat.Sources, mat.Target)
		}
		return errors.E(errors.Invalid, "unknown materialization "+mat.Kind.String())
	})
}

// FileMaterializer materializes targets on the local filesystem. Sources may
// be any path understood by github.com/grailbio/base/file.
type FileMaterializer struct{}

// Link replaces dst with a symbolic link to src. The source does not need to
// exist yet.
func (FileMaterializer) Link(_ context.Context, src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return errors.E(err, "remove", dst)
		}
	}
	if err := os.Symlink(src, dst); err != nil {
		return errors.E(err, "symlink", src, dst)
	}
	log.Debug.Printf("linked %s -> %s", dst, src)
	return nil
}

// Concat truncates dst and copies every source into it. Gzip members
// concatenate into a valid gzip stream, so compressed fastqs are copied
// verbatim.
func (FileMaterializer) Concat(ctx context.Context, srcs []string, dst string) (err error) {
	if _, err := os.Lstat(dst); err == nil {
		// A previous run may have left a link to a single lane here.
		if err := os.Remove(dst); err != nil {
			return errors.E(err, "remove", dst)
		}
	}
	out, err := file.Create(ctx, dst)
	if err != nil {
		return errors.E(err, "create", dst)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = errors.E(err2, "close", dst)
		}
	}()
	w := out.Writer(ctx)
	var total int64
	for _, src := range srcs {
		n, err := copyFile(ctx, w, src)
		if err != nil {
			return errors.E(err, "concat", src, dst)
		}
		total += n
	}
	log.Debug.Printf("concatenated %d files (%d bytes) into %s", len(srcs), total, dst)
	return nil
}

func copyFile(ctx context.Context, w io.Writer, path string) (n int64, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err2 := in.Close(ctx); err == nil {
			err = err2
		}
	}()
	return io.Copy(w, in.Reader(ctx))
}
