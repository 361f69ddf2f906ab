package bucket_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegeai/shapehist/bucket"
)

func TestNewIsEmpty(t *testing.T) {
	b := bucket.New()
	assert.Equal(t, 0, b.Total())
	assert.Nil(t, b.ArrayChildren)
	assert.Nil(t, b.ObjectChildren)
}

func TestCollectEmpty(t *testing.T) {
	b := bucket.Collect(nil)
	assert.Equal(t, bucket.Counts{}, b.Counts)
	assert.Nil(t, b.ArrayChildren)
	assert.Nil(t, b.ObjectChildren)
}

func TestCollectPrimitives(t *testing.T) {
	b := bucket.Collect([]any{"hello", nil, nil, 1, "world", 2, bucket.Undefined})

	assert.Equal(t, 2, b.Counts.Get(bucket.KindString))
	assert.Equal(t, 2, b.Counts.Get(bucket.KindNull))
	assert.Equal(t, 2, b.Counts.Get(bucket.KindNumber))
	assert.Equal(t, 1, b.Counts.Get(bucket.KindUndefined))
	assert.Equal(t, 0, b.Counts.Get(bucket.KindArray))
	assert.Equal(t, 0, b.Counts.Get(bucket.KindObject))
	assert.Equal(t, 7, b.Total())
	assert.Nil(t, b.ArrayChildren)
	assert.Nil(t, b.ObjectChildren)
}

func TestCollectArrays(t *testing.T) {
	b := bucket.Collect([]any{[]any{nil}, []any{1, 2, 3}})

	assert.Equal(t, 2, b.Counts.Get(bucket.KindArray))
	require.NotNil(t, b.ArrayChildren)
	assert.Equal(t, 1, b.ArrayChildren.Counts.Get(bucket.KindNull))
	assert.Equal(t, 3, b.ArrayChildren.Counts.Get(bucket.KindNumber))
	assert.Equal(t, 4, b.ArrayChildren.Total())
}

func TestCollectArraysSharedChild(t *testing.T) {
	b := bucket.Collect([]any{[]any{nil, 2}, []any{1, 2, 3, nil}})

	require.NotNil(t, b.ArrayChildren)
	assert.Equal(t, 2, b.ArrayChildren.Counts.Get(bucket.KindNull))
	assert.Equal(t, 4, b.ArrayChildren.Counts.Get(bucket.KindNumber))
}

func TestCollectEmptyArrayHasNoChild(t *testing.T) {
	b := bucket.Collect([]any{[]any{}})

	assert.Equal(t, 1, b.Counts.Get(bucket.KindArray))
	assert.Nil(t, b.ArrayChildren)

	b.Add([]any{"x"})
	require.NotNil(t, b.ArrayChildren)
	b.Add([]any{})
	assert.Equal(t, 3, b.Counts.Get(bucket.KindArray))
	assert.Equal(t, 1, b.ArrayChildren.Total())
}

func TestCollectNestedEmptyArray(t *testing.T) {
	b := bucket.Collect([]any{[]any{[]any{}}})

	require.NotNil(t, b.ArrayChildren)
	assert.Equal(t, 1, b.ArrayChildren.Counts.Get(bucket.KindArray))
	assert.Nil(t, b.ArrayChildren.ArrayChildren)
}

func TestCollectObjects(t *testing.T) {
	b := bucket.Collect([]any{
		map[string]any{"foo": "asdf"},
		map[string]any{"foo": "rttt", "bar": 0},
	})

	assert.Equal(t, 2, b.Counts.Get(bucket.KindObject))
	require.Len(t, b.ObjectChildren, 2)
	assert.Equal(t, bucket.Counts{bucket.KindString: 2}, b.ObjectChildren["foo"].Counts)
	assert.Equal(t, bucket.Counts{bucket.KindNumber: 1}, b.ObjectChildren["bar"].Counts)
}

func TestCollectEmptyObjectHasNoChildren(t *testing.T) {
	b := bucket.Collect([]any{map[string]any{}})

	assert.Equal(t, 1, b.Counts.Get(bucket.KindObject))
	assert.Nil(t, b.ObjectChildren)
}

func TestObjectKeyWithNullStillCreatesChild(t *testing.T) {
	b := bucket.Collect([]any{map[string]any{"a": nil}})

	require.Contains(t, b.ObjectChildren, "a")
	assert.Equal(t, 1, b.ObjectChildren["a"].Counts.Get(bucket.KindNull))
}

func TestAddToBucketNil(t *testing.T) {
	b := bucket.AddToBucket("x", nil)
	require.NotNil(t, b)
	assert.Equal(t, 1, b.Counts.Get(bucket.KindString))

	same := bucket.AddToBucket(true, b)
	assert.Same(t, b, same)
	assert.Equal(t, 1, b.Counts.Get(bucket.KindBoolean))
}

func TestAddGoTypes(t *testing.T) {
	type label string
	n := 3
	var nilPtr *int

	tests := []struct {
		name string
		v    any
		want bucket.Kind
	}{
		{"int64", int64(1), bucket.KindNumber},
		{"uint8", uint8(1), bucket.KindNumber},
		{"float32", float32(1.5), bucket.KindNumber},
		{"json.Number", json.Number("12"), bucket.KindNumber},
		{"named string", label("x"), bucket.KindString},
		{"pointer", &n, bucket.KindNumber},
		{"nil pointer", nilPtr, bucket.KindNull},
		{"bool", false, bucket.KindBoolean},
		{"typed slice", []string{"a", "b"}, bucket.KindArray},
		{"array", [2]int{1, 2}, bucket.KindArray},
		{"typed map", map[string]int{"a": 1}, bucket.KindObject},
		{"undefined", bucket.Undefined, bucket.KindUndefined},
		{"bytes", []byte("abc"), bucket.KindString},
		{"raw string", json.RawMessage(`"abc"`), bucket.KindString},
		{"raw number", json.RawMessage(`12`), bucket.KindNumber},
		{"raw null", json.RawMessage(`null`), bucket.KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bucket.New()
			b.Add(tt.v)
			assert.Equal(t, 1, b.Counts.Get(tt.want))
			assert.Equal(t, 1, b.Total())
		})
	}
}

func TestAddTypedContainersRecurse(t *testing.T) {
	b := bucket.New()
	b.Add(map[string][]int{"xs": {1, 2}})

	require.Contains(t, b.ObjectChildren, "xs")
	xs := b.ObjectChildren["xs"]
	assert.Equal(t, 1, xs.Counts.Get(bucket.KindArray))
	require.NotNil(t, xs.ArrayChildren)
	assert.Equal(t, 2, xs.ArrayChildren.Counts.Get(bucket.KindNumber))
}

func TestAddRawMessageRecurses(t *testing.T) {
	b := bucket.New()
	b.Add(map[string]json.RawMessage{"xs": json.RawMessage(`[1, "a", {"k": null}]`)})

	xs := b.ObjectChildren["xs"]
	require.NotNil(t, xs)
	assert.Equal(t, 1, xs.Counts.Get(bucket.KindArray))
	require.NotNil(t, xs.ArrayChildren)
	assert.Equal(t, 1, xs.ArrayChildren.Counts.Get(bucket.KindNumber))
	assert.Equal(t, 1, xs.ArrayChildren.Counts.Get(bucket.KindString))
	assert.Equal(t, 1, xs.ArrayChildren.ObjectChildren["k"].Counts.Get(bucket.KindNull))
}

func TestAddByteSlicesInContainers(t *testing.T) {
	b := bucket.New()
	b.Add([][]byte{[]byte("a"), nil})
	require.NotNil(t, b.ArrayChildren)
	assert.Equal(t, 1, b.ArrayChildren.Counts.Get(bucket.KindString))
	assert.Equal(t, 1, b.ArrayChildren.Counts.Get(bucket.KindNull))
}

func TestAddUnsupportedPanics(t *testing.T) {
	b := bucket.New()
	assert.Panics(t, func() { b.Add(make(chan int)) })
	assert.Panics(t, func() { b.Add(map[int]string{1: "x"}) })
	assert.Panics(t, func() { b.Add(struct{ A int }{1}) })
	assert.Panics(t, func() { b.Add(json.RawMessage(`NaN`)) })
}

func TestKindOf(t *testing.T) {
	k, ok := bucket.KindOf(nil)
	assert.True(t, ok)
	assert.Equal(t, bucket.KindNull, k)

	k, ok = bucket.KindOf(bucket.Undefined)
	assert.True(t, ok)
	assert.Equal(t, bucket.KindUndefined, k)

	_, ok = bucket.KindOf(func() {})
	assert.False(t, ok)

	_, ok = bucket.KindOf(json.RawMessage(`{"a":`))
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	for _, k := range bucket.Kinds() {
		got, err := bucket.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := bucket.ParseKind("integer")
	assert.Error(t, err)
}
