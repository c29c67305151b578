package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedSnapshot is returned for any payload rejected before decoding.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Field is one fixed-width entry of a Schema.
type Field[T any] struct {
	Name  string
	Width int
	// put writes the field into b and reports whether the value was clamped.
	put func(b []byte, order binary.ByteOrder, v *T) bool
	get func(b []byte, order binary.ByteOrder, v *T)
}

// Schema is an ordered list of fixed-width fields with a declared total size.
// The same Schema value encodes and decodes, so both directions always agree
// on layout.
type Schema[T any] struct {
	name     string
	size     int
	order    binary.ByteOrder
	fields   []Field[T]
	validate func(v *T) error
}

// NewSchema builds a schema from field groups. It panics if the field widths
// do not add up to size, since that is a programming error in the layout.
func NewSchema[T any](name string, size int, order binary.ByteOrder, groups ...[]Field[T]) *Schema[T] {
	s := &Schema[T]{
		name:  name,
		size:  size,
		order: order,
	}
	total := 0
	for _, group := range groups {
		for _, f := range group {
			total += f.Width
			s.fields = append(s.fields, f)
		}
	}
	if total != size {
		panic(fmt.Sprintf("schema %s: fields occupy %d bytes, declared %d", name, total, size))
	}
	return s
}

// WithValidation returns a copy of s that runs validate on every decoded value
// before it is committed.
func (s *Schema[T]) WithValidation(validate func(v *T) error) *Schema[T] {
	c := *s
	c.validate = validate
	return &c
}

// Name returns the schema name.
func (s *Schema[T]) Name() string {
	return s.name
}

// Size returns the encoded length in bytes.
func (s *Schema[T]) Size() int {
	return s.size
}

// Fields returns the field names in wire order.
func (s *Schema[T]) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.Name)
	}
	return names
}

// Encode serializes v.
func (s *Schema[T]) Encode(v *T) []byte {
	b, _ := s.EncodeReport(v)
	return b
}

// EncodeReport serializes v and returns the names of fields whose values were
// clamped into range.
func (s *Schema[T]) EncodeReport(v *T) ([]byte, []string) {
	b := make([]byte, s.size)
	var clamped []string
	offset := 0
	for _, f := range s.fields {
		if f.put(b[offset:offset+f.Width], s.order, v) {
			clamped = append(clamped, f.Name)
		}
		offset += f.Width
	}
	return b, clamped
}

// Decode parses b into v. The length is checked before any field is read and
// fields are decoded into a copy of v, so v is untouched when an error is
// returned.
func (s *Schema[T]) Decode(b []byte, v *T) error {
	if len(b) != s.size {
		return fmt.Errorf("%w: %s expects %d bytes, got %d", ErrMalformedSnapshot, s.name, s.size, len(b))
	}
	scratch := *v
	offset := 0
	for _, f := range s.fields {
		f.get(b[offset:offset+f.Width], s.order, &scratch)
		offset += f.Width
	}
	if s.validate != nil {
		if err := s.validate(&scratch); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, s.name, err)
		}
	}
	*v = scratch
	return nil
}
