package listener

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/siegeai/shapehist/bucket"
	"github.com/siegeai/shapehist/httpassembly"
	"github.com/siegeai/shapehist/integrations/histserver"
	"github.com/siegeai/shapehist/stream"
)

// Publisher receives the shapes observed since the last publish. A key that
// was already applied to a histogram must not be applied again.
type Publisher interface {
	MergeWithKey(ctx context.Context, id, key string, b *bucket.Bucket) (*histserver.AppendResult, error)
}

var _ Publisher = (*histserver.Client)(nil)

// Listener folds the JSON bodies of captured HTTP traffic into one set of
// Buckets per operation.
type Listener struct {
	source    PacketSource
	assembler *httpassembly.HttpAssembler

	mu      sync.Mutex
	parser  fastjson.Parser
	ops     map[string]*Operation
	pending []pendingMerge
}

// pendingMerge is a merge that failed to publish. It is resent unchanged with
// the same key, so a merge the server applied before the failure is not
// counted twice.
type pendingMerge struct {
	op  string
	id  string
	key string
	b   *bucket.Bucket
}

// maxPending bounds the failed merges kept for retry. The oldest are dropped
// first.
const maxPending = 4096

func NewListener(source PacketSource) *Listener {
	l := &Listener{source: source, ops: make(map[string]*Operation)}
	l.assembler = httpassembly.NewAssembler(&factory{l: l})
	return l
}

type factory struct {
	l *Listener
}

func (f *factory) New() httpassembly.HttpStream {
	return &httpStream{l: f.l}
}

type httpStream struct {
	l *Listener
}

func (s *httpStream) ReassembledRequestResponse(req *http.Request, res *http.Response) {
	s.l.handle(req, res)
}

// Run assembles packets until the source is exhausted or ctx is done. Open
// connections are flushed before returning.
func (l *Listener) Run(ctx context.Context) error {
	packets := l.source.Packets()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.assembler.FlushAll()
			return ctx.Err()

		case packet, ok := <-packets:
			if !ok {
				l.assembler.FlushAll()
				return nil
			}
			l.assembler.Assemble(packet)

		case <-ticker.C:
			n := l.assembler.FlushOlderThan(time.Now().Add(-2 * time.Minute))
			slog.Debug("flushed idle connections", "closed", n)
		}
	}
}

func (l *Listener) ListenJob(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	err := l.Run(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("listener stopped", "err", err)
	}
}

// PublishJob drains the listener every interval and merges what it drained
// into the server. A final publish runs when ctx is done.
func (l *Listener) PublishJob(ctx context.Context, wg *sync.WaitGroup, p Publisher, interval time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// the job context is gone, give the last publish its own
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			l.Publish(final, p)
			cancel()
			return
		case <-ticker.C:
			l.Publish(ctx, p)
		}
	}
}

// Publish sends every drained Bucket to p, after retrying the merges that
// failed before. Each merge carries an idempotency key. A failed merge keeps
// its key and is retried by the next publish.
func (l *Listener) Publish(ctx context.Context, p Publisher) int {
	l.mu.Lock()
	merges := l.pending
	l.pending = nil
	l.mu.Unlock()

	for key, op := range l.Drain() {
		if op.Request != nil {
			merges = append(merges, pendingMerge{op: key, id: RequestHistogramID(key), key: uuid.NewString(), b: op.Request})
		}
		for code, b := range op.Responses {
			merges = append(merges, pendingMerge{op: key, id: ResponseHistogramID(key, code), key: uuid.NewString(), b: b})
		}
	}

	published := 0
	var failed []pendingMerge
	for _, m := range merges {
		if _, err := p.MergeWithKey(ctx, m.id, m.key, m.b); err != nil {
			slog.Warn("could not publish shape", "op", m.op, "histogram", m.id, "err", err)
			failed = append(failed, m)
			continue
		}
		published++
	}

	if len(failed) > 0 {
		l.mu.Lock()
		l.pending = append(l.pending, failed...)
		if over := len(l.pending) - maxPending; over > 0 {
			slog.Error("dropping unpublished shapes", "count", over)
			l.pending = l.pending[over:]
		}
		l.mu.Unlock()
	}
	return published
}

// Pending returns the number of merges waiting to be retried.
func (l *Listener) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Snapshot returns a deep copy of every operation seen so far.
func (l *Listener) Snapshot() map[string]*Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make(map[string]*Operation, len(l.ops))
	for k, op := range l.ops {
		res[k] = op.clone()
	}
	return res
}

// Drain returns every operation seen so far and starts over empty. Merges
// pending a retry are not included.
func (l *Listener) Drain() map[string]*Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := l.ops
	l.ops = make(map[string]*Operation)
	return res
}

func (l *Listener) handle(req *http.Request, res *http.Response) {
	slog.Debug("handling", "method", req.Method, "url", req.URL, "status", res.Status)
	if 500 <= res.StatusCode && res.StatusCode < 600 {
		return
	}

	rb, err := stream.ReadAllEncoded(req.Header.Get("Content-Encoding"), req.Body)
	if err != nil {
		slog.Debug("could not read request body", "err", err)
		rb = nil
	}
	wb, err := stream.ReadAllEncoded(res.Header.Get("Content-Encoding"), res.Body)
	if err != nil {
		slog.Debug("could not read response body", "err", err)
		wb = nil
	}

	key := OperationKey(req.Method, req.URL.Path)

	l.mu.Lock()
	defer l.mu.Unlock()

	op, ok := l.ops[key]
	if !ok {
		op = newOperation(key)
	}

	folded := false
	if len(rb) > 0 && res.StatusCode != http.StatusBadRequest {
		folded = l.fold(op.request, rb) || folded
	}
	if len(wb) > 0 {
		folded = l.fold(func() *bucket.Bucket { return op.response(res.StatusCode) }, wb) || folded
	}

	if folded && !ok {
		l.ops[key] = op
	}
}

// fold adds body to the Bucket returned by target when body is JSON.
// Callers hold l.mu.
func (l *Listener) fold(target func() *bucket.Bucket, body []byte) bool {
	if err := fastjson.ValidateBytes(body); err != nil {
		slog.Debug("body is not json", "err", err)
		return false
	}
	v, err := l.parser.ParseBytes(body)
	if err != nil {
		slog.Debug("body is not json", "err", err)
		return false
	}
	target().AddFastJson(v)
	return true
}
