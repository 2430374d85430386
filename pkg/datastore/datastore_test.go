package datastore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/record"
)

func newRecord(t *testing.T, v field.Version, title, group string) *record.Record {
	t.Helper()
	rec, err := record.New(v, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, rec.SetTitle(title))
	if group != "" {
		require.NoError(t, rec.SetGroup(group))
	}
	return rec
}

// sliceSource replays records and then an optional error.
type sliceSource struct {
	recs []*record.Record
	err  error
}

func (s *sliceSource) Decode() (*record.Record, error) {
	if len(s.recs) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	r := s.recs[0]
	s.recs = s.recs[1:]
	return r, nil
}

func TestElementsTopLevel(t *testing.T) {
	ds := New(field.V3)
	err := ds.LoadRecords([]*record.Record{
		newRecord(t, field.V3, "gmail", "Work.Email"),
		newRecord(t, field.V3, "outlook", "Work.Email"),
		newRecord(t, field.V3, "bank", ""),
	})
	require.NoError(t, err)

	elems := ds.Elements()
	require.Len(t, elems, 2)
	assert.Equal(t, ElementGroup, elems[0].Kind)
	assert.Equal(t, "Work", elems[0].Name)
	assert.Equal(t, ElementRecord, elems[1].Kind)
	assert.Equal(t, "bank", elems[1].Name)
	assert.Equal(t, 2, elems[1].Entry.StoreIndex)
}

func TestGroupsUnder(t *testing.T) {
	ds := New(field.V3)
	require.NoError(t, ds.LoadRecords([]*record.Record{
		newRecord(t, field.V3, "vpn", "Work"),
		newRecord(t, field.V3, "gmail", "Work.Email"),
		newRecord(t, field.V3, "jira", "Work.Tools.Tracking"),
		newRecord(t, field.V3, "aws", "Work.Cloud"),
		newRecord(t, field.V3, "wiki", "Work"),
		newRecord(t, field.V3, "netflix", "Workshop"),
	}))

	elems := ds.GroupsUnder("Work")
	var got []string
	for _, e := range elems {
		got = append(got, e.Kind.String()+":"+e.Name)
	}
	assert.Equal(t, []string{"group:Cloud", "group:Email", "group:Tools", "record:vpn", "record:wiki"}, got)
	assert.Equal(t, "Work.Tools", elems[2].Path)

	deeper := ds.GroupsUnder("Work.Tools")
	require.Len(t, deeper, 1)
	assert.Equal(t, "Work.Tools.Tracking", deeper[0].Path)

	assert.Empty(t, ds.GroupsUnder("Nope"))
	assert.Equal(t, []string{"Work", "Work.Cloud", "Work.Email", "Work.Tools", "Work.Tools.Tracking", "Workshop"}, ds.Groups())
}

func TestLoadFromDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := record.NewEncoder(&buf)
	for _, title := range []string{"a", "b"} {
		require.NoError(t, enc.Encode(newRecord(t, field.V2, title, "")))
	}

	ds := New(field.V2)
	require.NoError(t, ds.Load(record.NewDecoder(&buf, field.V2)))
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "b", ds.SparseEntries()[1].Title)
}

func TestLoadIsAllOrNothing(t *testing.T) {
	ds := New(field.V3)
	require.NoError(t, ds.LoadRecords([]*record.Record{newRecord(t, field.V3, "keep", "")}))

	boom := errors.New("boom")
	err := ds.Load(&sliceSource{
		recs: []*record.Record{newRecord(t, field.V3, "new", "")},
		err:  boom,
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "keep", ds.SparseEntries()[0].Title)

	err = ds.Load(&sliceSource{recs: []*record.Record{newRecord(t, field.V2, "v2", "")}})
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.Equal(t, 1, ds.Len())
}

func TestLoadPropagatesParseErrors(t *testing.T) {
	data := []byte{100, 0, 0, 0, 3, 'x'}
	ds := New(field.V2)
	err := ds.Load(record.NewDecoder(bytes.NewReader(data), field.V2))
	assert.ErrorIs(t, err, record.ErrTruncatedRecord)
	assert.Equal(t, 0, ds.Len())
}

func TestMutationsKeepProjectionsInStep(t *testing.T) {
	ds := New(field.V3)
	for _, title := range []string{"a", "b", "c"} {
		_, err := ds.Append(newRecord(t, field.V3, title, ""))
		require.NoError(t, err)
	}

	require.NoError(t, ds.Insert(1, newRecord(t, field.V3, "x", "G")))
	assertInStep(t, ds, "a", "x", "b", "c")

	withURL := newRecord(t, field.V3, "y", "")
	require.NoError(t, withURL.SetURL("https://example.com"))
	require.NoError(t, ds.Update(2, withURL))
	assertInStep(t, ds, "a", "x", "y", "c")
	e, err := ds.SparseEntry(2)
	require.NoError(t, err)
	assert.True(t, e.HasURL)

	require.NoError(t, ds.Delete(0))
	assertInStep(t, ds, "x", "y", "c")
	assert.Equal(t, "G", ds.SparseEntries()[0].Group)
}

func assertInStep(t *testing.T, ds *Datastore, titles ...string) {
	t.Helper()
	entries := ds.SparseEntries()
	require.Len(t, entries, len(titles))
	for i, e := range entries {
		assert.Equal(t, i, e.StoreIndex)
		assert.Equal(t, titles[i], e.Title)
		rec, err := ds.GetEntry(i)
		require.NoError(t, err)
		assert.Equal(t, rec.Title(), e.Title)
		assert.Equal(t, rec.Group(), e.Group)
	}
}

func TestMutationValidation(t *testing.T) {
	ds := New(field.V2)

	_, err := ds.Append(nil)
	assert.ErrorIs(t, err, ErrNilRecord)

	_, err = ds.Append(newRecord(t, field.V3, "wrong", ""))
	assert.ErrorIs(t, err, ErrVersionMismatch)

	noUUID, err := record.Parse(field.V2, []byte{1, 0, 0, 0, 3, 'x', 0, 0, 0, 0, 0xff})
	require.NoError(t, err)
	_, err = ds.Append(noUUID)
	assert.ErrorIs(t, err, record.ErrMissingUUID)

	assert.ErrorIs(t, ds.Insert(1, newRecord(t, field.V2, "a", "")), ErrIndexOutOfRange)
	assert.ErrorIs(t, ds.Update(0, newRecord(t, field.V2, "a", "")), ErrIndexOutOfRange)
	assert.ErrorIs(t, ds.Delete(-1), ErrIndexOutOfRange)
	_, err = ds.GetEntry(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestGetEntryIsACopy(t *testing.T) {
	ds := New(field.V3)
	orig := newRecord(t, field.V3, "orig", "")
	i, err := ds.Append(orig)
	require.NoError(t, err)

	require.NoError(t, orig.SetTitle("caller changed"))
	got, err := ds.GetEntry(i)
	require.NoError(t, err)
	assert.Equal(t, "orig", got.Title())

	require.NoError(t, got.SetTitle("copy changed"))
	again, _ := ds.GetEntry(i)
	assert.Equal(t, "orig", again.Title())
}

func TestLiveRecordAndRefresh(t *testing.T) {
	ds := New(field.V3)
	i, err := ds.Append(newRecord(t, field.V3, "before", ""))
	require.NoError(t, err)

	live, err := ds.Record(i)
	require.NoError(t, err)
	require.NoError(t, live.SetTitle("after"))
	assert.Equal(t, "before", ds.SparseEntries()[i].Title)

	require.NoError(t, ds.Refresh(i))
	assert.Equal(t, "after", ds.SparseEntries()[i].Title)
}

func TestFindByUUID(t *testing.T) {
	ds := New(field.V3)
	rec := newRecord(t, field.V3, "target", "")
	_, err := ds.Append(newRecord(t, field.V3, "other", ""))
	require.NoError(t, err)
	_, err = ds.Append(rec)
	require.NoError(t, err)

	u, _ := rec.UUID()
	i, ok := ds.FindByUUID(u)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	other, err := field.NewUUID(rand.Reader)
	require.NoError(t, err)
	_, ok = ds.FindByUUID(other)
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	ds := New(field.V1)
	_, err := ds.Append(newRecord(t, field.V1, "v1", ""))
	require.NoError(t, err)
	assert.Equal(t, "", ds.SparseEntries()[0].Group)

	ds.Close()
	assert.Equal(t, 0, ds.Len())
	assert.Empty(t, ds.SparseEntries())
	assert.Empty(t, ds.Elements())
}
