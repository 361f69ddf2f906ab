package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// NewEncodedReader decodes r according to an HTTP Content-Encoding value.
func NewEncodedReader(enc string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip", "x-gzip":
		return gzip.NewReader(r)
	case "deflate":
		return zlib.NewReader(r)
	case "zstd":
		return newZstdReader(r)
	case "compress", "br":
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEncoding, enc)
	default:
		slog.Warn("unknown encoding", "enc", enc)
		return io.NopCloser(r), nil
	}
}

// ReadAllEncoded reads and decodes a whole body. An empty body yields nil.
func ReadAllEncoded(enc string, r io.Reader) ([]byte, error) {
	d, err := NewEncodedReader(enc, r)
	if err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	bs, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}

	if err := d.Close(); err != nil {
		slog.Warn("could not close reader", "err", err)
	}

	return bs, nil
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// NewDecodedReader detects gzip, zstd and lz4 frame input by its magic bytes
// and decodes it. Anything else is passed through unchanged.
func NewDecodedReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head, magicZstd):
		slog.Debug("decoding zstd input")
		return newZstdReader(br)
	case bytes.HasPrefix(head, magicLZ4):
		slog.Debug("decoding lz4 input")
		return io.NopCloser(lz4.NewReader(br)), nil
	case bytes.HasPrefix(head, magicGzip):
		slog.Debug("decoding gzip input")
		return gzip.NewReader(br)
	}
	return io.NopCloser(br), nil
}

func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}
