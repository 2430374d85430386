// Package record assembles fields into password records and frames them on
// the decrypted byte stream.
//
// V2 and V3 records are sequences of type-length-value blocks
//
//	[Length(4, LE)][Type(1)][Payload(Length)]
//
// terminated by a block of type 0xff. V1 records have no type tags: they are
// exactly three length-prefixed blocks (name, password, notes) where the name
// carries title and username joined by U+00AD.
//
// Field types a version does not know are kept as opaque fields and written
// back unchanged.
package record

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/pwsafe/pkg/field"
)

// Record is an ordered set of fields, unique by type id, tagged with a
// format version. Setting an existing type replaces the field in place.
type Record struct {
	version field.Version
	order   []field.TypeID
	fields  map[field.TypeID]field.Field
}

// New creates an empty record for version v. V2 and V3 records get a fresh
// UUID drawn from rand.
func New(v field.Version, rand io.Reader) (*Record, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(v))
	}
	r := newRecord(v)
	if v == field.V1 {
		return r, nil
	}

	u, err := field.NewUUID(rand)
	if err != nil {
		return nil, err
	}
	f, err := field.FromValue(v, field.TypeUUID, u)
	if err != nil {
		return nil, err
	}
	r.put(f)
	return r, nil
}

func newRecord(v field.Version) *Record {
	return &Record{
		version: v,
		fields:  make(map[field.TypeID]field.Field),
	}
}

// Version returns the record's format version.
func (r *Record) Version() field.Version {
	return r.version
}

func (r *Record) put(f field.Field) {
	if _, ok := r.fields[f.Type()]; !ok {
		r.order = append(r.order, f.Type())
	}
	r.fields[f.Type()] = f
}

// Set adds or replaces a field. The field must belong to the record's
// version and its type must be registered for that version.
func (r *Record) Set(f field.Field) error {
	if f.Version() != r.version {
		return fmt.Errorf("%w: %s field in %s record", ErrVersionMismatch, f.Version(), r.version)
	}
	if !field.Known(r.version, f.Type()) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidType, f.Type(), r.version)
	}
	r.put(f)
	return nil
}

// Get returns the field of type t.
func (r *Record) Get(t field.TypeID) (field.Field, bool) {
	f, ok := r.fields[t]
	return f, ok
}

// Has reports whether the record holds a field of type t.
func (r *Record) Has(t field.TypeID) bool {
	_, ok := r.fields[t]
	return ok
}

// Remove deletes the field of type t. The UUID of a V2/V3 record cannot be
// removed.
func (r *Record) Remove(t field.TypeID) error {
	if t == field.TypeUUID && r.version != field.V1 {
		return ErrMissingUUID
	}
	if _, ok := r.fields[t]; !ok {
		return nil
	}
	delete(r.fields, t)
	r.order = slices.DeleteFunc(r.order, func(id field.TypeID) bool { return id == t })
	return nil
}

// Fields returns the fields in insertion order.
func (r *Record) Fields() []field.Field {
	out := make([]field.Field, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.fields[t])
	}
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.order)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := newRecord(r.version)
	for _, f := range r.Fields() {
		c.put(f)
	}
	return c
}

// Equal reports whether both records have the same version and equal fields
// in the same order.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.version != o.version || len(r.order) != len(o.order) {
		return false
	}
	for i, t := range r.order {
		if o.order[i] != t || !r.fields[t].Equal(o.fields[t]) {
			return false
		}
	}
	return true
}

// Validate checks the record-level invariants: a supported version and, for
// V2/V3, a UUID field.
func (r *Record) Validate() error {
	if !r.version.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(r.version))
	}
	if r.version != field.V1 && !r.Has(field.TypeUUID) {
		return ErrMissingUUID
	}
	return nil
}

// Text returns the decoded text of field t, or "" when absent.
func (r *Record) Text(t field.TypeID) string {
	f, ok := r.fields[t]
	if !ok {
		return ""
	}
	return f.Text()
}

// SetText stores s in field t using the version's string codec.
func (r *Record) SetText(t field.TypeID, s string) error {
	if !field.Known(r.version, t) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidType, t, r.version)
	}
	f, err := field.FromValue(r.version, t, s)
	if err != nil {
		return err
	}
	return r.Set(f)
}

func (r *Record) Title() string    { return r.Text(field.TypeTitle) }
func (r *Record) Username() string { return r.Text(field.TypeUsername) }
func (r *Record) Password() string { return r.Text(field.TypePassword) }
func (r *Record) Notes() string    { return r.Text(field.TypeNotes) }
func (r *Record) Group() string    { return r.Text(field.TypeGroup) }
func (r *Record) URL() string      { return r.Text(field.TypeURL) }

func (r *Record) SetTitle(s string) error    { return r.SetText(field.TypeTitle, s) }
func (r *Record) SetUsername(s string) error { return r.SetText(field.TypeUsername, s) }
func (r *Record) SetPassword(s string) error { return r.SetText(field.TypePassword, s) }
func (r *Record) SetNotes(s string) error    { return r.SetText(field.TypeNotes, s) }
func (r *Record) SetGroup(s string) error    { return r.SetText(field.TypeGroup, s) }
func (r *Record) SetURL(s string) error      { return r.SetText(field.TypeURL, s) }

// UUID returns the record's UUID. V1 records have none.
func (r *Record) UUID() (uuid.UUID, bool) {
	f, ok := r.fields[field.TypeUUID]
	if !ok {
		return uuid.Nil, false
	}
	return f.UUID()
}

// Time returns the value of time field t.
func (r *Record) Time(t field.TypeID) (time.Time, bool) {
	f, ok := r.fields[t]
	if !ok {
		return time.Time{}, false
	}
	return f.Time()
}

// SetTime stores tm, truncated to the second, in time field t.
func (r *Record) SetTime(t field.TypeID, tm time.Time) error {
	if !field.Known(r.version, t) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidType, t, r.version)
	}
	f, err := field.FromValue(r.version, t, tm)
	if err != nil {
		return err
	}
	return r.Set(f)
}

// Touch sets the modification timestamps the format version supports.
func (r *Record) Touch(now time.Time) error {
	if r.version == field.V1 {
		return nil
	}
	if !r.Has(field.TypeCreationTime) {
		if err := r.SetTime(field.TypeCreationTime, now); err != nil {
			return err
		}
	}
	if r.version == field.V3 {
		return r.SetTime(field.TypeLastModTime, now)
	}
	return nil
}
