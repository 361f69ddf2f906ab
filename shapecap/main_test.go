package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegeai/shapehist/bucket"
	"github.com/siegeai/shapehist/listener"
	"github.com/siegeai/shapehist/server"
)

func emptyCapture(t *testing.T) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "empty.pcap")
	f, err := os.Create(name)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pcapgo.NewWriter(f).WriteFileHeader(65536, layers.LinkTypeEthernet))
	return name
}

func TestRunRequiresFile(t *testing.T) {
	err := run(context.Background(), "", "", time.Second, &bytes.Buffer{})
	assert.ErrorContains(t, err, "-r")
}

func TestRunMissingFile(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "nope.pcap"), "", time.Second, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunEmptyCapturePrintsNothing(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), emptyCapture(t), "", time.Second, &out))
	assert.Empty(t, out.String())
}

func TestRunPublishesToServer(t *testing.T) {
	ts := httptest.NewServer(server.New())
	defer ts.Close()

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), emptyCapture(t), ts.URL, time.Hour, &out))
	assert.Empty(t, out.String())
}

func TestPrintOperationsSortedByKey(t *testing.T) {
	ops := map[string]*listener.Operation{
		"POST /b": {Key: "POST /b", Request: bucket.Collect([]any{"x"})},
		"GET /a":  {Key: "GET /a", Responses: map[int]*bucket.Bucket{200: bucket.Collect([]any{1.0})}},
	}

	var out bytes.Buffer
	require.NoError(t, printOperations(&out, ops))

	want := `{"key":"GET /a","responses":{"200":{"counts":{"number":1}}}}` + "\n" +
		`{"key":"POST /b","request":{"counts":{"string":1}}}` + "\n"
	assert.Equal(t, want, out.String())
}
