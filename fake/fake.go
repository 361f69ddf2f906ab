// Package fake generates random JSON-like values for tests.
package fake

import (
	"encoding/json"
	"io"
	"math/rand"

	"github.com/siegeai/shapehist/bucket"
)

type Generator struct {
	rnd      *rand.Rand
	maxDepth int
	keys     []string
}

// New returns a deterministic generator. Object keys are drawn from a small
// pool so that fields repeat across values.
func New(seed int64) *Generator {
	g := &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		maxDepth: 4,
	}
	g.keys = make([]string, 8)
	for i := range g.keys {
		g.keys[i] = g.String(1 + g.rnd.Intn(6))
	}
	return g
}

// Values returns n independent top-level values.
func (g *Generator) Values(n int) []any {
	vs := make([]any, n)
	for i := range vs {
		vs[i] = g.Value()
	}
	return vs
}

func (g *Generator) Value() any {
	return g.valueRecursive(0)
}

// JSON returns a random object, as sent by a typical API client.
func (g *Generator) JSON() map[string]any {
	return g.objectRecursive(0)
}

// NDJSON writes n random documents, one per line. Undefined object members
// are left out and undefined array elements are written as null.
func (g *Generator) NDJSON(w io.Writer, n int) error {
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		v := g.Value()
		if v == bucket.Undefined {
			v = nil
		}
		if err := enc.Encode(encodable(v)); err != nil {
			return err
		}
	}
	return nil
}

func encodable(v any) any {
	switch v := v.(type) {
	case []any:
		for i, e := range v {
			if e == bucket.Undefined {
				v[i] = nil
			} else {
				v[i] = encodable(e)
			}
		}
	case map[string]any:
		for k, e := range v {
			if e == bucket.Undefined {
				delete(v, k)
			} else {
				v[k] = encodable(e)
			}
		}
	}
	return v
}

func (g *Generator) valueRecursive(depth int) any {
	leaf := depth+1 >= g.maxDepth
	switch n := g.rnd.Intn(100); {
	case n < 5:
		return bucket.Undefined
	case n < 10:
		return nil
	case n < 30:
		return g.rnd.Float64() * 1000
	case n < 50:
		return g.String(1 + g.rnd.Intn(32))
	case n < 60:
		return g.rnd.Intn(2) == 0
	case n < 80 && !leaf:
		return g.arrayRecursive(depth + 1)
	case !leaf:
		return g.objectRecursive(depth + 1)
	}
	return g.String(1 + g.rnd.Intn(8))
}

func (g *Generator) arrayRecursive(depth int) []any {
	n := g.rnd.Intn(5)
	arr := make([]any, n)
	for i := range arr {
		arr[i] = g.valueRecursive(depth)
	}
	return arr
}

func (g *Generator) objectRecursive(depth int) map[string]any {
	nkeys := g.rnd.Intn(len(g.keys))
	obj := make(map[string]any, nkeys)
	for i := 0; i < nkeys; i++ {
		key := g.keys[g.rnd.Intn(len(g.keys))]
		obj[key] = g.valueRecursive(depth)
	}
	return obj
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func (g *Generator) String(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[g.rnd.Intn(len(letters))]
	}
	return string(b)
}

// Shuffle returns a permuted copy of vs.
func (g *Generator) Shuffle(vs []any) []any {
	out := make([]any, len(vs))
	copy(out, vs)
	g.rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
