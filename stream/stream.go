// Package stream feeds newline-delimited JSON into a bucket, one document per
// line.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/valyala/fastjson"

	"github.com/siegeai/shapehist/bucket"
)

const DefaultMaxLineSize = 64 << 20

var ErrMalformedLine = errors.New("malformed line")

// LineError reports the first input line that could not be folded. Lines are
// numbered from 1.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func (e *LineError) Is(target error) bool {
	return target == ErrMalformedLine
}

// Folder holds a running bucket between lines. Use it directly when lines
// arrive one at a time, or call Fold for a whole reader.
type Folder struct {
	b      *bucket.Bucket
	p      fastjson.Parser
	lines  int
	folded int
}

func NewFolder(b *bucket.Bucket) *Folder {
	if b == nil {
		b = bucket.New()
	}
	return &Folder{b: b}
}

// FoldLine parses line as one JSON document and folds it. A line that fails
// to parse leaves the bucket untouched. Blank lines are skipped.
func (f *Folder) FoldLine(line []byte) error {
	f.lines++
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}

	// the parser alone lets through NaN, leading zeros and bad escapes
	if err := fastjson.ValidateBytes(line); err != nil {
		return &LineError{Line: f.lines, Err: err}
	}
	v, err := f.p.ParseBytes(line)
	if err != nil {
		return &LineError{Line: f.lines, Err: err}
	}
	f.b.AddFastJson(v)
	f.folded++
	return nil
}

func (f *Folder) Bucket() *bucket.Bucket {
	return f.b
}

// Lines is the number of lines consumed, blank ones included.
func (f *Folder) Lines() int {
	return f.lines
}

// Folded is the number of documents folded into the bucket.
func (f *Folder) Folded() int {
	return f.folded
}

type options struct {
	maxLineSize int
}

type Option func(*options)

func WithMaxLineSize(n int) Option {
	return func(o *options) {
		o.maxLineSize = n
	}
}

// Fold reads r to the end, folding every line into b, and returns b. A nil b
// starts a new bucket.
//
// It stops at the first malformed line with a *LineError. ctx is checked
// between lines; on cancellation the bucket holds every line completed so far
// and the context error is returned alongside it.
func Fold(ctx context.Context, r io.Reader, b *bucket.Bucket, opts ...Option) (*bucket.Bucket, error) {
	o := options{maxLineSize: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(&o)
	}

	f := NewFolder(b)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64<<10, o.maxLineSize)), o.maxLineSize)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return f.Bucket(), err
		}
		if err := f.FoldLine(sc.Bytes()); err != nil {
			return f.Bucket(), err
		}
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return f.Bucket(), &LineError{Line: f.Lines() + 1, Err: err}
		}
		return f.Bucket(), err
	}
	return f.Bucket(), nil
}
