package listener

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/siegeai/shapehist/bucket"
)

// Operation holds the shapes of the JSON bodies seen for one endpoint.
type Operation struct {
	Key       string                 `json:"key"`
	Request   *bucket.Bucket         `json:"request,omitempty"`
	Responses map[int]*bucket.Bucket `json:"responses,omitempty"`
}

func newOperation(key string) *Operation {
	return &Operation{Key: key}
}

func (o *Operation) clone() *Operation {
	c := &Operation{Key: o.Key, Request: o.Request.Clone()}
	if o.Responses != nil {
		c.Responses = make(map[int]*bucket.Bucket, len(o.Responses))
		for code, b := range o.Responses {
			c.Responses[code] = b.Clone()
		}
	}
	return c
}

func (o *Operation) response(code int) *bucket.Bucket {
	if o.Responses == nil {
		o.Responses = make(map[int]*bucket.Bucket)
	}
	b, ok := o.Responses[code]
	if !ok {
		b = bucket.New()
		o.Responses[code] = b
	}
	return b
}

func (o *Operation) request() *bucket.Bucket {
	if o.Request == nil {
		o.Request = bucket.New()
	}
	return o.Request
}

// OperationKey names an endpoint as "METHOD /path", with numeric and uuid
// path segments replaced by {arg1}, {arg2}, ...
func OperationKey(method, path string) string {
	nparams := 1
	parts := strings.Split(path, "/")
	resparts := make([]string, len(parts))
	for i, p := range parts {
		if _, err := strconv.Atoi(p); err == nil {
			resparts[i] = fmt.Sprintf("{arg%d}", nparams)
			nparams += 1
		} else if _, err := uuid.Parse(p); err == nil {
			resparts[i] = fmt.Sprintf("{arg%d}", nparams)
			nparams += 1
		} else {
			resparts[i] = p
		}
	}
	return method + " " + strings.Join(resparts, "/")
}

// RequestHistogramID is the stable histogram id for request bodies of an
// operation, so that every listener publishes into the same histogram.
func RequestHistogramID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key+" request")).String()
}

func ResponseHistogramID(key string, code int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key+" "+strconv.Itoa(code))).String()
}
