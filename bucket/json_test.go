package bucket_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegeai/shapehist/bucket"
	"github.com/siegeai/shapehist/fake"
)

func TestMarshalOmitsUnsetFields(t *testing.T) {
	bs, err := json.Marshal(bucket.Collect([]any{"hello", "world"}))
	require.NoError(t, err)
	assert.Equal(t, `{"counts":{"string":2}}`, string(bs))

	bs, err = json.Marshal(bucket.New())
	require.NoError(t, err)
	assert.Equal(t, `{"counts":{}}`, string(bs))
}

func TestMarshalFieldAndKindOrder(t *testing.T) {
	b := bucket.Collect([]any{
		[]any{true},
		map[string]any{"z": 1, "a": nil},
		"s", 1.5, nil, bucket.Undefined,
	})

	bs, err := json.Marshal(b)
	require.NoError(t, err)

	want := `{"arrayChildren":{"counts":{"boolean":1}},` +
		`"objectChildren":{"a":{"counts":{"null":1}},"z":{"counts":{"number":1}}},` +
		`"counts":{"undefined":1,"number":1,"string":1,"null":1,"array":1,"object":1}}`
	assert.Equal(t, want, string(bs))
}

func TestUnmarshalRoundTrip(t *testing.T) {
	g := fake.New(7)
	b := bucket.Collect(g.Values(60))

	bs, err := json.Marshal(b)
	require.NoError(t, err)

	var got bucket.Bucket
	require.NoError(t, json.Unmarshal(bs, &got))
	assert.Equal(t, b, &got)

	again, err := json.Marshal(&got)
	require.NoError(t, err)
	assert.Equal(t, string(bs), string(again))
}

func TestUnmarshalRejectsBadCounts(t *testing.T) {
	var b bucket.Bucket
	assert.Error(t, json.Unmarshal([]byte(`{"counts":{"integer":1}}`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"counts":{"string":-1}}`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"counts":[1,2]}`), &b))
}
