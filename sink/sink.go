// Package sink writes finished histograms somewhere durable.
package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/siegeai/shapehist/bucket"
)

type Sink interface {
	Write(ctx context.Context, id string, b *bucket.Bucket) error
}

// WriterSink writes each bucket as one line of JSON. The id is not written.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Sink = (*WriterSink)(nil)

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(_ context.Context, _ string, b *bucket.Bucket) error {
	if b == nil {
		b = bucket.New()
	}
	bs, err := json.Marshal(b)
	if err != nil {
		return err
	}
	bs = append(bs, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(bs)
	return err
}
