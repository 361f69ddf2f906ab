// Package infer describes a shape histogram as an OpenAPI schema.
package infer

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/siegeai/shapehist/bucket"
)

// Schema builds the schema accepting every value observed in b. Kinds that
// were never observed are left out; null only marks the schema nullable.
func Schema(b *bucket.Bucket) *openapi3.Schema {
	if b == nil {
		return &openapi3.Schema{}
	}

	var alts []*openapi3.Schema
	for _, k := range bucket.Kinds() {
		if b.Counts.Get(k) == 0 {
			continue
		}
		switch k {
		case bucket.KindUndefined, bucket.KindNull:
			// neither has a type of its own
		case bucket.KindNumber:
			alts = append(alts, NewNumberSchema())
		case bucket.KindString:
			alts = append(alts, NewStringSchema())
		case bucket.KindBoolean:
			alts = append(alts, NewBooleanSchema())
		case bucket.KindArray:
			alts = append(alts, NewArraySchema(b.ArrayChildren))
		case bucket.KindObject:
			alts = append(alts, NewObjectSchema(b))
		default:
			panic("should be unreachable")
		}
	}

	var s *openapi3.Schema
	switch len(alts) {
	case 0:
		s = &openapi3.Schema{}
	case 1:
		s = alts[0]
	default:
		s = openapi3.NewOneOfSchema(alts...)
	}
	if b.Counts.Get(bucket.KindNull) > 0 {
		s.Nullable = true
	}
	return s
}

// NewObjectSchema describes the objects observed in b. A property is required
// when every observed object carried it with a defined value.
func NewObjectSchema(b *bucket.Bucket) *openapi3.Schema {
	objects := b.Counts.Get(bucket.KindObject)
	ps := make(openapi3.Schemas, len(b.ObjectChildren))
	rs := make([]string, 0, len(b.ObjectChildren))
	for k, child := range b.ObjectChildren {
		ps[k] = Schema(child).NewRef()
		if child.Total()-child.Counts.Get(bucket.KindUndefined) == objects {
			rs = append(rs, k)
		}
	}
	sort.Strings(rs)

	s := &openapi3.Schema{
		Type:       openapi3.TypeObject,
		Properties: ps,
	}
	if len(rs) > 0 {
		s.Required = rs
	}
	return s
}

// NewArraySchema describes arrays whose elements were folded into elems. elems
// is nil when only empty arrays were seen.
func NewArraySchema(elems *bucket.Bucket) *openapi3.Schema {
	return &openapi3.Schema{
		Type:  openapi3.TypeArray,
		Items: Schema(elems).NewRef(),
	}
}

func NewStringSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: openapi3.TypeString,
	}
}

func NewNumberSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: openapi3.TypeNumber,
	}
}

func NewBooleanSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: openapi3.TypeBoolean,
	}
}
