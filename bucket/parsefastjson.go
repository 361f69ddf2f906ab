package bucket

import (
	"github.com/valyala/fastjson"
)

// ParseBytes parses a single strict JSON document and folds it into a new
// bucket.
func ParseBytes(bs []byte) (*Bucket, error) {
	v, err := parseStrict(bs)
	if err != nil {
		return nil, err
	}
	b := New()
	b.AddFastJson(v)
	return b, nil
}

func parseStrict(m []byte) (*fastjson.Value, error) {
	if err := fastjson.ValidateBytes(m); err != nil {
		return nil, err
	}
	return fastjson.ParseBytes(m)
}

// AddFastJson folds a parsed document into b. A nil v counts as undefined.
func (b *Bucket) AddFastJson(v *fastjson.Value) {
	switch kindOfFastJson(v) {
	case KindUndefined:
		b.Counts[KindUndefined]++
	case KindNumber:
		b.Counts[KindNumber]++
	case KindString:
		b.Counts[KindString]++
	case KindNull:
		b.Counts[KindNull]++
	case KindBoolean:
		b.Counts[KindBoolean]++
	case KindArray:
		addFastJsonArray(b, v.GetArray())
	case KindObject:
		addFastJsonObject(b, v.GetObject())
	default:
		panic("should be unreachable")
	}
}

func kindOfFastJson(v *fastjson.Value) Kind {
	if v == nil {
		return KindUndefined
	}
	switch v.Type() {
	case fastjson.TypeNull:
		return KindNull
	case fastjson.TypeObject:
		return KindObject
	case fastjson.TypeArray:
		return KindArray
	case fastjson.TypeString:
		return KindString
	case fastjson.TypeNumber:
		return KindNumber
	case fastjson.TypeTrue, fastjson.TypeFalse:
		return KindBoolean
	}

	panic("should be unreachable")
}

func addFastJsonArray(b *Bucket, vs []*fastjson.Value) {
	for _, v := range vs {
		b.arrayChild().AddFastJson(v)
	}
	b.Counts[KindArray]++
}

// addFastJsonObject folds each member once. For a repeated key the last
// occurrence wins, as with encoding/json.
func addFastJsonObject(b *Bucket, o *fastjson.Object) {
	if o != nil && o.Len() > 0 {
		members := make(map[string]*fastjson.Value, o.Len())
		o.Visit(func(key []byte, v *fastjson.Value) {
			members[string(key)] = v
		})
		for key, v := range members {
			b.objectChild(key).AddFastJson(v)
		}
	}
	b.Counts[KindObject]++
}
