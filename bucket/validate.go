package bucket

import (
	"errors"
	"fmt"
)

var ErrInvalidBucket = errors.New("invalid bucket")

// Validate checks a histogram that did not come from folding values, such as
// one decoded from the wire. Children must be present only for kinds that
// were observed, no child may be nil, counts may not be negative, and an
// object member cannot be seen more often than objects were.
func (b *Bucket) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: missing bucket", ErrInvalidBucket)
	}
	return b.validate("$")
}

func (b *Bucket) validate(path string) error {
	for _, k := range Kinds() {
		if b.Counts[k] < 0 {
			return fmt.Errorf("%w: %s: negative %s count", ErrInvalidBucket, path, k)
		}
	}

	if b.ArrayChildren != nil {
		if b.Counts[KindArray] == 0 {
			return fmt.Errorf("%w: %s: array children without arrays", ErrInvalidBucket, path)
		}
		if err := b.ArrayChildren.validate(path + "[]"); err != nil {
			return err
		}
	}

	objects := b.Counts[KindObject]
	if len(b.ObjectChildren) > 0 && objects == 0 {
		return fmt.Errorf("%w: %s: object children without objects", ErrInvalidBucket, path)
	}
	for key, child := range b.ObjectChildren {
		p := path + "." + key
		if child == nil {
			return fmt.Errorf("%w: %s: missing bucket", ErrInvalidBucket, p)
		}
		if child.Total() > objects {
			return fmt.Errorf("%w: %s: seen %d times in %d objects", ErrInvalidBucket, p, child.Total(), objects)
		}
		if err := child.validate(p); err != nil {
			return err
		}
	}
	return nil
}
