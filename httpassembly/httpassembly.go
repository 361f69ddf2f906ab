package httpassembly

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"
)

// maxBuffered bounds the bytes held per direction while waiting for a full
// request or response.
const maxBuffered = 16 << 20

type HttpAssembler struct {
	pool      *reassembly.StreamPool
	assembler *reassembly.Assembler
}

func NewAssembler(factory HttpStreamFactory) *HttpAssembler {
	p := reassembly.NewStreamPool(&factoryWrapper{wrap: factory})
	a := reassembly.NewAssembler(p)
	return &HttpAssembler{pool: p, assembler: a}
}

type assemblyContext struct {
	CaptureInfo gopacket.CaptureInfo
}

func (c *assemblyContext) GetCaptureInfo() gopacket.CaptureInfo {
	return c.CaptureInfo
}

func (a *HttpAssembler) Assemble(p gopacket.Packet) {
	tcp := p.Layer(layers.LayerTypeTCP)
	if tcp == nil || p.NetworkLayer() == nil {
		return
	}

	c := assemblyContext{CaptureInfo: p.Metadata().CaptureInfo}
	a.assembler.AssembleWithContext(p.NetworkLayer().NetworkFlow(), tcp.(*layers.TCP), &c)
}

// FlushOlderThan closes connections idle since before t and returns how many
// were closed.
func (a *HttpAssembler) FlushOlderThan(t time.Time) int {
	_, closed := a.assembler.FlushWithOptions(reassembly.FlushOptions{T: t, TC: t})
	return closed
}

func (a *HttpAssembler) FlushAll() int {
	return a.assembler.FlushAll()
}

type HttpStreamFactory interface {
	New() HttpStream
}

// HttpStream receives each request paired with its response. Both bodies
// have already been read into memory and can be read again.
type HttpStream interface {
	ReassembledRequestResponse(req *http.Request, res *http.Response)
}

type factoryWrapper struct {
	wrap HttpStreamFactory
}

func (f *factoryWrapper) New(netFlow, tcpFlow gopacket.Flow, tcp *layers.TCP, ac reassembly.AssemblerContext) reassembly.Stream {
	return &streamWrapper{wrap: f.wrap.New()}
}

type streamWrapper struct {
	wrap HttpStream
	req  []byte
	res  []byte
}

func (s *streamWrapper) Accept(tcp *layers.TCP, ci gopacket.CaptureInfo, dir reassembly.TCPFlowDirection, nextSeq reassembly.Sequence, start *bool, ac reassembly.AssemblerContext) bool {
	// captures often begin mid-connection
	*start = true
	return true
}

func (s *streamWrapper) ReassembledSG(sg reassembly.ScatterGather, ac reassembly.AssemblerContext) {
	l, _ := sg.Lengths()
	if l == 0 {
		return
	}

	dir, _, _, skip := sg.Info()
	if skip != 0 {
		slog.Debug("lost bytes in stream, resetting", "skip", skip)
		s.reset()
	}

	payload := sg.Fetch(l)
	if dir == reassembly.TCPDirClientToServer {
		s.req = append(s.req, payload...)
	} else {
		s.res = append(s.res, payload...)
	}

	if len(s.req) > maxBuffered || len(s.res) > maxBuffered {
		slog.Warn("http message too large, dropping", "req", len(s.req), "res", len(s.res))
		s.reset()
		return
	}

	s.drain()
}

// drain hands off every complete request/response pair currently buffered.
func (s *streamWrapper) drain() {
	for len(s.req) > 0 && len(s.res) > 0 {
		r, reqLen, err := readRequest(s.req)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return
		} else if err != nil {
			slog.Debug("could not parse request", "err", err)
			s.reset()
			return
		}

		w, resLen, err := readResponse(s.res, r)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return
		} else if err != nil {
			slog.Debug("could not parse response", "err", err)
			s.reset()
			return
		}

		s.req = s.req[reqLen:]
		s.res = s.res[resLen:]
		s.wrap.ReassembledRequestResponse(r, w)
	}
}

func (s *streamWrapper) reset() {
	s.req = nil
	s.res = nil
}

func (s *streamWrapper) ReassemblyComplete(ac reassembly.AssemblerContext) bool {
	return true
}

// readRequest parses one request from the front of buf and reports how many
// bytes it used. io.ErrUnexpectedEOF means more data is needed.
func readRequest(buf []byte) (*http.Request, int, error) {
	cr := &countingReader{r: bytes.NewReader(buf)}
	br := bufio.NewReader(cr)
	r, err := http.ReadRequest(br)
	if err != nil {
		return nil, 0, eofIsUnexpected(err)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, 0, eofIsUnexpected(err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return r, cr.n - br.Buffered(), nil
}

func readResponse(buf []byte, req *http.Request) (*http.Response, int, error) {
	cr := &countingReader{r: bytes.NewReader(buf)}
	br := bufio.NewReader(cr)
	w, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, 0, eofIsUnexpected(err)
	}
	body, err := io.ReadAll(w.Body)
	if err != nil {
		return nil, 0, eofIsUnexpected(err)
	}
	w.Body = io.NopCloser(bytes.NewReader(body))
	return w, cr.n - br.Buffered(), nil
}

func eofIsUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
