package bucket

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Merge combines two histograms as if every value folded into b had also been
// folded into a. Counts add per kind and children merge recursively. nil is
// the identity. The result never aliases a or b.
func Merge(a, b *Bucket) *Bucket {
	if a == nil && b == nil {
		return nil
	}
	if a != nil && b == nil {
		return a.Clone()
	}
	if a == nil && b != nil {
		return b.Clone()
	}

	res := a.Clone()
	res.mergeFrom(b)
	return res
}

// MergeInto folds src into dst in place. src is left untouched and nothing in
// dst ends up shared with it.
func MergeInto(dst, src *Bucket) {
	if src == nil {
		return
	}
	dst.mergeFrom(src)
}

func (b *Bucket) mergeFrom(o *Bucket) {
	for k, n := range o.Counts {
		b.Counts[k] += n
	}

	if o.ArrayChildren != nil {
		if b.ArrayChildren == nil {
			b.ArrayChildren = o.ArrayChildren.Clone()
		} else {
			b.ArrayChildren.mergeFrom(o.ArrayChildren)
		}
	}

	for key, child := range o.ObjectChildren {
		if mine, ok := b.ObjectChildren[key]; ok {
			mine.mergeFrom(child)
			continue
		}
		if b.ObjectChildren == nil {
			b.ObjectChildren = make(map[string]*Bucket, len(o.ObjectChildren))
		}
		b.ObjectChildren[key] = child.Clone()
	}
}

// Clone returns a deep copy of b.
func (b *Bucket) Clone() *Bucket {
	if b == nil {
		return nil
	}
	c := &Bucket{Counts: b.Counts}
	if b.ArrayChildren != nil {
		c.ArrayChildren = b.ArrayChildren.Clone()
	}
	if b.ObjectChildren != nil {
		c.ObjectChildren = make(map[string]*Bucket, len(b.ObjectChildren))
		for key, child := range b.ObjectChildren {
			c.ObjectChildren[key] = child.Clone()
		}
	}
	return c
}

// Fingerprint hashes the canonical JSON encoding of b. Equal histograms have
// equal fingerprints.
func (b *Bucket) Fingerprint() uint64 {
	d := xxhash.New()
	if err := json.NewEncoder(d).Encode(b); err != nil {
		// Counts and string-keyed maps always encode
		panic(err)
	}
	return d.Sum64()
}
