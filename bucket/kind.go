package bucket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/valyala/fastjson"
)

type Kind int

const (
	KindUndefined Kind = 0
	KindNumber    Kind = 1
	KindString    Kind = 2
	KindNull      Kind = 3
	KindBoolean   Kind = 4
	KindArray     Kind = 5
	KindObject    Kind = 6

	numKinds = 7
)

var kindNames = [numKinds]string{
	KindUndefined: "undefined",
	KindNumber:    "number",
	KindString:    "string",
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindArray:     "array",
	KindObject:    "object",
}

// Kinds lists every kind in serialization order.
func Kinds() []Kind {
	ks := make([]Kind, numKinds)
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

type undefined struct{}

// Undefined stands for an absent value. Go has no native equivalent, nil is
// classified as null.
var Undefined = undefined{}

// KindOf classifies a decoded Go value. The second return is false when v is
// outside the set of JSON-like values.
func KindOf(v any) (Kind, bool) {
	switch v := v.(type) {
	case undefined:
		return KindUndefined, true
	case nil:
		return KindNull, true
	case string:
		return KindString, true
	case bool:
		return KindBoolean, true
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return KindNumber, true
	case json.RawMessage:
		if v == nil {
			return KindNull, true
		}
		fv, err := parseStrict(v)
		if err != nil {
			return 0, false
		}
		return kindOfFastJson(fv), true
	case []byte:
		// encoding/json writes byte slices as base64 strings
		if v == nil {
			return KindNull, true
		}
		return KindString, true
	case []any:
		return KindArray, true
	case map[string]any:
		return KindObject, true
	case *fastjson.Value:
		return kindOfFastJson(v), true
	}
	return kindOfReflect(reflect.ValueOf(v))
}

func kindOfReflect(rv reflect.Value) (Kind, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return KindNull, true
		}
		return kindOfReflect(rv.Elem())
	case reflect.String:
		return KindString, true
	case reflect.Bool:
		return KindBoolean, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber, true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return KindNull, true
			}
			return KindString, true
		}
		return KindArray, true
	case reflect.Array:
		return KindArray, true
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindObject, true
		}
	}
	return 0, false
}

// Counts holds one counter per kind. Absent kinds are zero.
type Counts [numKinds]int

func (c Counts) Get(k Kind) int {
	return c[k]
}

func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// MarshalJSON writes the non-zero counters in kind order.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for k, n := range c {
		if n == 0 {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteByte('"')
		buf.WriteString(kindNames[k])
		buf.WriteString(`":`)
		buf.WriteString(strconv.Itoa(n))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Counts) UnmarshalJSON(b []byte) error {
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = Counts{}
	for name, n := range m {
		k, err := ParseKind(name)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative count for %s: %d", name, n)
		}
		c[k] = n
	}
	return nil
}
