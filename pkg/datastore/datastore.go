// Package datastore indexes the records of an opened password file.
//
// A Datastore keeps the full records in store order next to a lightweight
// Entry projection for each of them. Listings and the group hierarchy are
// served from the projections so that passwords and notes are only touched
// when a record is explicitly requested.
//
// A Datastore is not safe for concurrent use; callers serialise access.
package datastore

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"

	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/record"
)

// Datastore errors.
var (
	ErrIndexOutOfRange = errors.New("datastore: store index out of range")
	ErrVersionMismatch = errors.New("datastore: record version does not match the datastore")
	ErrNilRecord       = errors.New("datastore: nil record")
)

// Source yields records until it returns io.EOF. *record.Decoder is a Source.
type Source interface {
	Decode() (*record.Record, error)
}

// Datastore is an ordered backing list of records with one projection per
// record, kept in lock-step.
type Datastore struct {
	version field.Version
	records []*record.Record
	entries []Entry
}

// New returns an empty datastore for version v records.
func New(v field.Version) *Datastore {
	return &Datastore{version: v}
}

// Version returns the format version of the stored records.
func (d *Datastore) Version() field.Version {
	return d.version
}

// Len returns the number of records.
func (d *Datastore) Len() int {
	return len(d.records)
}

// Load replaces the contents with every record read from src. Loading is all
// or nothing: on any error the previous contents are kept and the error is
// returned unchanged apart from added context.
func (d *Datastore) Load(src Source) error {
	var recs []*record.Record
	for {
		rec, err := src.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("datastore: load record %d: %w", len(recs), err)
		}
		if err := d.checkVersion(rec); err != nil {
			return fmt.Errorf("datastore: load record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
	d.reset(recs)
	return nil
}

// LoadRecords replaces the contents with clones of recs.
func (d *Datastore) LoadRecords(recs []*record.Record) error {
	out := make([]*record.Record, 0, len(recs))
	for i, rec := range recs {
		if err := d.checkVersion(rec); err != nil {
			return fmt.Errorf("datastore: record %d: %w", i, err)
		}
		out = append(out, rec.Clone())
	}
	d.reset(out)
	return nil
}

func (d *Datastore) reset(recs []*record.Record) {
	d.records = recs
	d.entries = make([]Entry, len(recs))
	for i := range recs {
		d.entries[i] = project(i, recs[i])
	}
}

func (d *Datastore) checkVersion(rec *record.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.Version() != d.version {
		return fmt.Errorf("%w: %s record in %s datastore", ErrVersionMismatch, rec.Version(), d.version)
	}
	return nil
}

// checkInsertable applies the rules for records entering through mutation.
func (d *Datastore) checkInsertable(rec *record.Record) error {
	if err := d.checkVersion(rec); err != nil {
		return err
	}
	return rec.Validate()
}

func (d *Datastore) checkIndex(i int) error {
	if i < 0 || i >= len(d.records) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(d.records))
	}
	return nil
}

// Append adds a clone of rec at the end and returns its store index.
func (d *Datastore) Append(rec *record.Record) (int, error) {
	i := len(d.records)
	if err := d.Insert(i, rec); err != nil {
		return -1, err
	}
	return i, nil
}

// Insert places a clone of rec at store index i, shifting later records up
// by one. i may equal Len.
func (d *Datastore) Insert(i int, rec *record.Record) error {
	if i < 0 || i > len(d.records) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(d.records))
	}
	if err := d.checkInsertable(rec); err != nil {
		return err
	}
	c := rec.Clone()
	d.records = slices.Insert(d.records, i, c)
	d.entries = slices.Insert(d.entries, i, project(i, c))
	d.renumber(i + 1)
	return nil
}

// Update replaces the record at store index i with a clone of rec.
func (d *Datastore) Update(i int, rec *record.Record) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	if err := d.checkInsertable(rec); err != nil {
		return err
	}
	c := rec.Clone()
	d.records[i] = c
	d.entries[i] = project(i, c)
	return nil
}

// Delete removes the record at store index i, shifting later records down.
func (d *Datastore) Delete(i int) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	d.records = slices.Delete(d.records, i, i+1)
	d.entries = slices.Delete(d.entries, i, i+1)
	d.renumber(i)
	return nil
}

func (d *Datastore) renumber(from int) {
	for j := from; j < len(d.entries); j++ {
		d.entries[j].StoreIndex = j
	}
}

// GetEntry returns a copy of the full record at store index i.
func (d *Datastore) GetEntry(i int) (*record.Record, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	return d.records[i].Clone(), nil
}

// Record returns the stored record at index i itself. Changes made through
// the returned pointer are not reflected in the projection until Refresh(i).
func (d *Datastore) Record(i int) (*record.Record, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	return d.records[i], nil
}

// Refresh recomputes the projection of store index i.
func (d *Datastore) Refresh(i int) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	d.entries[i] = project(i, d.records[i])
	return nil
}

// Records returns the stored records in store order. The slice is a copy;
// the records are not.
func (d *Datastore) Records() []*record.Record {
	return slices.Clone(d.records)
}

// SparseEntries returns the projections in store order.
func (d *Datastore) SparseEntries() []Entry {
	return slices.Clone(d.entries)
}

// SparseEntry returns the projection of store index i.
func (d *Datastore) SparseEntry(i int) (Entry, error) {
	if err := d.checkIndex(i); err != nil {
		return Entry{}, err
	}
	return d.entries[i], nil
}

// FindByUUID returns the store index of the record with UUID u.
func (d *Datastore) FindByUUID(u uuid.UUID) (int, bool) {
	for i, rec := range d.records {
		if id, ok := rec.UUID(); ok && id == u {
			return i, true
		}
	}
	return -1, false
}

// Close drops all records and projections.
func (d *Datastore) Close() {
	clear(d.records)
	d.records = nil
	d.entries = nil
}
