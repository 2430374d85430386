package field

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Field is one typed value of a record. The zero value is not usable; build
// fields with New or FromValue.
type Field struct {
	typ     TypeID
	version Version
	raw     []byte
}

// New builds a field from raw bytes, validating them against the codec for
// (v, t). Malformed bytes fail with ErrMalformedField. The raw slice is copied.
func New(v Version, t TypeID, raw []byte) (Field, error) {
	if _, err := Lookup(v, t).Decode(raw); err != nil {
		return Field{}, fmt.Errorf("%s field %s: %w", v, t, err)
	}
	return Field{typ: t, version: v, raw: bytes.Clone(raw)}, nil
}

// FromValue encodes value with the codec for (v, t). See Codec for the value
// types each kind accepts.
func FromValue(v Version, t TypeID, value any) (Field, error) {
	raw, err := Lookup(v, t).Encode(value)
	if err != nil {
		return Field{}, fmt.Errorf("%s field %s: %w", v, t, err)
	}
	return Field{typ: t, version: v, raw: raw}, nil
}

// Type returns the field's type id.
func (f Field) Type() TypeID { return f.typ }

// Version returns the format version the field belongs to.
func (f Field) Version() Version { return f.version }

// Kind returns the codec kind of the field.
func (f Field) Kind() Kind {
	k, _ := KindOf(f.version, f.typ)
	return k
}

// Known reports whether the field's type is registered for its version.
func (f Field) Known() bool { return Known(f.version, f.typ) }

// Len returns the length of the raw encoding.
func (f Field) Len() int { return len(f.raw) }

// Bytes returns a copy of the canonical raw encoding.
func (f Field) Bytes() []byte { return bytes.Clone(f.raw) }

// Value returns the decoded value.
func (f Field) Value() any {
	v, err := Lookup(f.version, f.typ).Decode(f.raw)
	if err != nil {
		// unreachable for fields built through New or FromValue
		return bytes.Clone(f.raw)
	}
	return v
}

// Text returns the decoded text of string fields and the display form of
// any other field.
func (f Field) Text() string {
	if s, ok := f.Value().(string); ok {
		return s
	}
	return f.String()
}

// UUID returns the decoded value of a UUID field.
func (f Field) UUID() (uuid.UUID, bool) {
	u, ok := f.Value().(uuid.UUID)
	return u, ok
}

// Time returns the decoded value of a time field.
func (f Field) Time() (time.Time, bool) {
	t, ok := f.Value().(time.Time)
	return t, ok
}

// Uint32 returns the decoded value of an integer field.
func (f Field) Uint32() (uint32, bool) {
	n, ok := f.Value().(uint32)
	return n, ok
}

// String renders the value for display. An empty wide string renders as
// "null"; equality still treats it as the empty string.
func (f Field) String() string {
	switch v := f.Value().(type) {
	case string:
		if v == "" && f.Kind() == KindWideString {
			return "null"
		}
		return v
	case uuid.UUID:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case []byte:
		return hex.EncodeToString(v)
	default:
		return fmt.Sprint(v)
	}
}

// Equal reports whether f and o have the same type id and equal decoded values.
func (f Field) Equal(o Field) bool {
	return f.typ == o.typ && Compare(f, o) == 0
}

// Compare orders fields by decoded value: strings case-sensitively by text,
// UUIDs by bytes, times and integers numerically. Fields of different kinds
// order by kind.
func Compare(a, b Field) int {
	ka, kb := a.Kind(), b.Kind()
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	return codecs[ka].Compare(a.Value(), b.Value())
}

// NewUUID generates a random (version 4) UUID from rand. Pass crypto/rand.Reader
// in production; tests may substitute a deterministic source.
func NewUUID(rand io.Reader) (uuid.UUID, error) {
	u, err := uuid.NewRandomFromReader(rand)
	if err != nil {
		return uuid.Nil, fmt.Errorf("field: failed to generate uuid: %w", err)
	}
	return u, nil
}
