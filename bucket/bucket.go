// Package bucket folds JSON-like values into a recursive histogram of their
// shapes. Each Bucket is one position in the nesting structure: the top level,
// "any element of an array here", or "field X of an object here".
package bucket

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/valyala/fastjson"
)

// Bucket counts the kinds of value observed at one position. The zero value
// is an empty bucket ready to use.
//
// A Bucket exclusively owns its children and is mutated in place by Add.
// It is not safe for concurrent use.
type Bucket struct {
	// ArrayChildren merges every element of every array seen here. It stays
	// nil until a non-empty array is folded.
	ArrayChildren *Bucket `json:"arrayChildren,omitempty"`

	// ObjectChildren holds one bucket per key seen among objects here.
	ObjectChildren map[string]*Bucket `json:"objectChildren,omitempty"`

	Counts Counts `json:"counts"`
}

func New() *Bucket {
	return &Bucket{}
}

// AddToBucket folds v into b and returns b. A nil b starts a new bucket.
func AddToBucket(v any, b *Bucket) *Bucket {
	if b == nil {
		b = New()
	}
	b.Add(v)
	return b
}

// Collect folds values left to right into a new bucket.
func Collect(values []any) *Bucket {
	b := New()
	for _, v := range values {
		b.Add(v)
	}
	return b
}

// Add folds one observation into b. It panics if v is not a JSON-like value,
// see KindOf. A json.RawMessage is folded as the document it holds and byte
// slices count as strings, matching encoding/json.
func (b *Bucket) Add(v any) {
	switch v := v.(type) {
	case []any:
		for _, e := range v {
			b.arrayChild().Add(e)
		}
		b.Counts[KindArray]++
		return
	case map[string]any:
		for key, e := range v {
			b.objectChild(key).Add(e)
		}
		b.Counts[KindObject]++
		return
	case *fastjson.Value:
		b.AddFastJson(v)
		return
	case json.RawMessage:
		if v == nil {
			b.Counts[KindNull]++
			return
		}
		fv, err := parseStrict(v)
		if err != nil {
			panic(fmt.Sprintf("bucket: invalid json.RawMessage: %s", err))
		}
		b.AddFastJson(fv)
		return
	}

	k, ok := KindOf(v)
	if !ok {
		panic(fmt.Sprintf("bucket: unsupported value type %T", v))
	}
	switch k {
	case KindUndefined, KindNumber, KindString, KindNull, KindBoolean:
		b.Counts[k]++
	case KindArray, KindObject:
		b.addReflect(reflect.ValueOf(v))
	default:
		panic("should be unreachable")
	}
}

func (b *Bucket) addReflect(rv reflect.Value) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			b.Counts[KindNull]++
			return
		}
		rv = rv.Elem()
	}

	k, ok := kindOfReflect(rv)
	if !ok {
		panic(fmt.Sprintf("bucket: unsupported value type %s", rv.Type()))
	}
	switch k {
	case KindArray:
		for i := 0; i < rv.Len(); i++ {
			b.arrayChild().Add(rv.Index(i).Interface())
		}
	case KindObject:
		iter := rv.MapRange()
		for iter.Next() {
			b.objectChild(iter.Key().String()).Add(iter.Value().Interface())
		}
	}
	b.Counts[k]++
}

func (b *Bucket) arrayChild() *Bucket {
	if b.ArrayChildren == nil {
		b.ArrayChildren = New()
	}
	return b.ArrayChildren
}

func (b *Bucket) objectChild(key string) *Bucket {
	if b.ObjectChildren == nil {
		b.ObjectChildren = make(map[string]*Bucket)
	}
	child, ok := b.ObjectChildren[key]
	if !ok {
		child = New()
		b.ObjectChildren[key] = child
	}
	return child
}

// Total is the number of values folded into b.
func (b *Bucket) Total() int {
	if b == nil {
		return 0
	}
	return b.Counts.Total()
}
