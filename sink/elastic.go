package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/siegeai/shapehist/bucket"
)

var ErrIndexFailed = errors.New("elasticsearch index failed")

type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	Transport http.RoundTripper
}

// ElasticSink stores each histogram as one document, keyed by histogram id.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

var _ Sink = (*ElasticSink)(nil)

func NewElasticSink(cfg ElasticConfig) (*ElasticSink, error) {
	if cfg.Index == "" {
		return nil, errors.New("elastic sink: missing index")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, err
	}
	return &ElasticSink{client: client, index: cfg.Index}, nil
}

type elasticDocument struct {
	Histogram   string         `json:"histogram"`
	Fingerprint string         `json:"fingerprint"`
	Observed    int            `json:"observed"`
	Bucket      *bucket.Bucket `json:"bucket"`
}

func (s *ElasticSink) Write(ctx context.Context, id string, b *bucket.Bucket) error {
	if b == nil {
		b = bucket.New()
	}
	body, err := json.Marshal(&elasticDocument{
		Histogram:   id,
		Fingerprint: strconv.FormatUint(b.Fingerprint(), 16),
		Observed:    b.Total(),
		Bucket:      b,
	})
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrIndexFailed, res.String())
	}
	return nil
}
