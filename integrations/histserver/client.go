package histserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/siegeai/shapehist/bucket"
)

// IdempotencyKeyHeader carries the key of a merge that may be retried.
const IdempotencyKeyHeader = "Idempotency-Key"

type Client struct {
	Server string
	HTTP   *http.Client
}

var (
	ErrUnexpectedResponse = errors.New("unexpected response code")
	ErrNotFound           = errors.New("histogram not found")
)

func NewClient(server string) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https: %q", server)
	}
	client := &Client{
		Server: strings.TrimRight(server, "/"),
		HTTP:   &http.Client{},
	}
	return client, nil
}

type created struct {
	ID string `json:"id"`
}

type AppendResult struct {
	Folded   int `json:"folded"`
	Observed int `json:"observed"`
}

// Create starts a new empty histogram and returns its id.
func (c *Client) Create(ctx context.Context) (string, error) {
	var res created
	if err := c.do(ctx, http.MethodPost, "/histograms", nil, nil, &res, http.StatusCreated); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Ensure creates the histogram with the given uuid unless it already exists.
func (c *Client) Ensure(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, c.path(id), nil, nil, nil, http.StatusCreated, http.StatusOK)
}

// AppendValues uploads newline-delimited JSON. The server folds all of it or
// none of it.
func (c *Client) AppendValues(ctx context.Context, id string, body io.Reader) (*AppendResult, error) {
	var res AppendResult
	if err := c.do(ctx, http.MethodPost, c.path(id)+"/values", contentType("application/x-ndjson"), body, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

// Merge adds a locally built histogram into the server's copy, creating it if
// needed.
func (c *Client) Merge(ctx context.Context, id string, b *bucket.Bucket) (*AppendResult, error) {
	return c.MergeWithKey(ctx, id, "", b)
}

// MergeWithKey is Merge with an idempotency key. The server applies a key at
// most once per histogram, so a merge whose response was lost can be resent
// with the same key without counting twice.
func (c *Client) MergeWithKey(ctx context.Context, id, key string, b *bucket.Bucket) (*AppendResult, error) {
	bs, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	hdr := contentType("application/json")
	if key != "" {
		hdr.Set(IdempotencyKeyHeader, key)
	}
	var res AppendResult
	if err := c.do(ctx, http.MethodPost, c.path(id)+"/merge", hdr, bytes.NewReader(bs), &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Get(ctx context.Context, id string) (*bucket.Bucket, error) {
	var b bucket.Bucket
	if err := c.do(ctx, http.MethodGet, c.path(id), nil, nil, &b, http.StatusOK); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) path(id string) string {
	return "/histograms/" + url.PathEscape(id)
}

func contentType(ct string) http.Header {
	return http.Header{"Content-Type": {ct}}
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, body io.Reader, out any, want ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.formatURL(path), body)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		req.Header[k] = vs
	}
	req.Header.Add("Accept", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !slices.Contains(want, res.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("%w %d: %s", ErrUnexpectedResponse, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, err = io.Copy(io.Discard, res.Body)
		return err
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) formatURL(path string) string {
	return fmt.Sprintf("%s%s", c.Server, path)
}
