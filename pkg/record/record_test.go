package record

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/pwsafe/pkg/field"
)

// tlv builds one V2/V3 block.
func tlv(typ field.TypeID, payload []byte) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(payload)))
	b = append(b, byte(typ))
	return append(b, payload...)
}

// block builds one untagged V1 block.
func block(payload []byte) []byte {
	return append(binary.LittleEndian.AppendUint32(nil, uint32(len(payload))), payload...)
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestParseV2TitleUsername(t *testing.T) {
	data := join(
		tlv(field.TypeTitle, []byte("title")),
		tlv(field.TypeUsername, []byte("bob")),
		tlv(field.TypeEndOfRecord, nil),
	)

	rec, err := Parse(field.V2, data)
	require.NoError(t, err)
	require.Equal(t, 2, rec.Len())
	assert.Equal(t, "title", rec.Title())
	assert.Equal(t, "bob", rec.Username())

	out, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestParseTruncatedPayload(t *testing.T) {
	data := join(
		tlv(field.TypeTitle, []byte("title")),
		binary.LittleEndian.AppendUint32(nil, 100),
		[]byte{byte(field.TypeNotes)},
		[]byte("short"),
	)

	rec, err := Parse(field.V2, data)
	assert.Nil(t, rec)
	require.ErrorIs(t, err, ErrTruncatedRecord)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, int64(10), perr.Offset)
	assert.True(t, perr.HasType)
	assert.Equal(t, field.TypeNotes, perr.Type)
}

func TestParseTruncatedHeader(t *testing.T) {
	data := join(tlv(field.TypeTitle, []byte("x")), []byte{3, 0})
	_, err := Parse(field.V3, data)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestParseUnterminated(t *testing.T) {
	data := tlv(field.TypeTitle, []byte("title"))
	_, err := Parse(field.V2, data)
	assert.ErrorIs(t, err, ErrUnterminatedRecord)

	_, err = Parse(field.V2, nil)
	assert.ErrorIs(t, err, ErrUnterminatedRecord)
}

func TestParseMalformedField(t *testing.T) {
	data := join(tlv(field.TypeUUID, make([]byte, 15)), tlv(field.TypeEndOfRecord, nil))
	_, err := Parse(field.V3, data)
	require.ErrorIs(t, err, field.ErrMalformedField)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, field.TypeUUID, perr.Type)
	assert.Contains(t, perr.Error(), "type 0x01")
}

func TestParseEndMarkerWithPayload(t *testing.T) {
	data := join(tlv(field.TypeTitle, []byte("title")), tlv(field.TypeEndOfRecord, []byte{0x01}))
	_, err := Parse(field.V2, data)
	require.ErrorIs(t, err, field.ErrMalformedField)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, field.TypeEndOfRecord, perr.Type)
	assert.Equal(t, int64(10), perr.Offset)
}

func TestParsePreservesUnknownTypes(t *testing.T) {
	u := make([]byte, 16)
	u[0] = 0x42
	data := join(
		tlv(field.TypeUUID, u),
		tlv(field.TypeID(0x40), []byte{9, 8, 7}),
		tlv(field.TypeURL, []byte("not a V2 field")),
		tlv(field.TypeEndOfRecord, nil),
	)

	rec, err := Parse(field.V2, data)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Len())

	unknown, ok := rec.Get(field.TypeID(0x40))
	require.True(t, ok)
	assert.False(t, unknown.Known())
	assert.Equal(t, []byte{9, 8, 7}, unknown.Bytes())

	out, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestParseLastWriteWins(t *testing.T) {
	data := join(
		tlv(field.TypeTitle, []byte("first")),
		tlv(field.TypeNotes, []byte("n")),
		tlv(field.TypeTitle, []byte("second")),
		tlv(field.TypeEndOfRecord, nil),
	)
	rec, err := Parse(field.V2, data)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, "second", rec.Title())
	assert.Equal(t, field.TypeTitle, rec.Fields()[0].Type())
}

func TestV1Layout(t *testing.T) {
	tests := []struct {
		name     string
		nameRaw  []byte
		title    string
		username string
		exact    bool
	}{
		{"title and user", []byte("bank\xadbob"), "bank", "bob", true},
		{"title only", []byte("bank"), "bank", "", true},
		{"default user", []byte("bank\xa0"), "bank", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := join(block(tt.nameRaw), block([]byte("secret")), block([]byte("notes")))
			rec, err := Parse(field.V1, data)
			require.NoError(t, err)

			assert.Equal(t, field.V1, rec.Version())
			assert.Equal(t, tt.title, rec.Title())
			assert.Equal(t, tt.username, rec.Username())
			assert.Equal(t, "secret", rec.Password())
			assert.Equal(t, "notes", rec.Notes())
			_, hasUUID := rec.UUID()
			assert.False(t, hasUUID)
			assert.NoError(t, rec.Validate())

			out, err := rec.MarshalBinary()
			require.NoError(t, err)
			if tt.exact {
				assert.Equal(t, data, out)
			}
			again, err := Parse(field.V1, out)
			require.NoError(t, err)
			assert.True(t, rec.Equal(again))
		})
	}
}

func TestV1Truncated(t *testing.T) {
	data := join(block([]byte("bank")), block([]byte("secret")))
	_, err := Parse(field.V1, data)
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	var want []*Record
	for _, title := range []string{"one", "two", "three"} {
		rec, err := New(field.V3, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, rec.SetTitle(title))
		require.NoError(t, enc.Encode(rec))
		want = append(want, rec)
	}
	written := enc.Written()
	assert.Equal(t, int64(buf.Len()), written)

	// zero padding up to the next 16-byte block
	buf.Write(make([]byte, (16-buf.Len()%16)%16))

	dec := NewDecoder(&buf, field.V3)
	dec.SetBlockSize(16)
	for _, w := range want {
		got, err := dec.Decode()
		require.NoError(t, err)
		assert.True(t, w.Equal(got))
	}
	assert.Equal(t, written, dec.Offset())

	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderWithoutBlockSizeRejectsPadding(t *testing.T) {
	data := join(tlv(field.TypeTitle, []byte("t")), tlv(field.TypeEndOfRecord, nil), []byte{0, 0, 0})
	dec := NewDecoder(bytes.NewReader(data), field.V2)
	_, err := dec.Decode()
	require.NoError(t, err)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestDecoderUnsupportedVersion(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil), field.Version(7)).Decode()
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestNewRecord(t *testing.T) {
	r2, err := New(field.V2, rand.Reader)
	require.NoError(t, err)
	u2, ok := r2.UUID()
	require.True(t, ok)

	r3, err := New(field.V3, rand.Reader)
	require.NoError(t, err)
	u3, _ := r3.UUID()
	assert.NotEqual(t, u2, u3)

	r1, err := New(field.V1, rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, 0, r1.Len())

	_, err = New(field.Version(0), rand.Reader)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = New(field.V3, bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestRecordSet(t *testing.T) {
	rec, err := New(field.V2, rand.Reader)
	require.NoError(t, err)

	assert.ErrorIs(t, rec.SetURL("https://example.com"), ErrInvalidType)

	v3Title, err := field.FromValue(field.V3, field.TypeTitle, "x")
	require.NoError(t, err)
	assert.ErrorIs(t, rec.Set(v3Title), ErrVersionMismatch)

	opaque, err := field.New(field.V2, field.TypeID(0x40), []byte{1})
	require.NoError(t, err)
	assert.ErrorIs(t, rec.Set(opaque), ErrInvalidType)

	require.NoError(t, rec.SetGroup("Work.Email"))
	require.NoError(t, rec.SetPassword("pw"))
	require.NoError(t, rec.SetPassword("pw2"))
	assert.Equal(t, "Work.Email", rec.Group())
	assert.Equal(t, "pw2", rec.Password())
	assert.Equal(t, 3, rec.Len())

	v1, err := New(field.V1, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, v1.SetGroup("g"), ErrInvalidType)
}

func TestRecordRemove(t *testing.T) {
	rec, err := New(field.V3, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, rec.SetNotes("n"))
	require.NoError(t, rec.SetURL("u"))

	require.NoError(t, rec.Remove(field.TypeNotes))
	assert.False(t, rec.Has(field.TypeNotes))
	assert.Equal(t, []field.TypeID{field.TypeUUID, field.TypeURL}, typeIDs(rec))
	require.NoError(t, rec.Remove(field.TypeNotes))

	assert.ErrorIs(t, rec.Remove(field.TypeUUID), ErrMissingUUID)
}

func TestRecordValidate(t *testing.T) {
	data := join(tlv(field.TypeTitle, []byte("no uuid")), tlv(field.TypeEndOfRecord, nil))
	rec, err := Parse(field.V2, data)
	require.NoError(t, err)
	assert.ErrorIs(t, rec.Validate(), ErrMissingUUID)
}

func TestRecordClone(t *testing.T) {
	rec, err := New(field.V3, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, rec.SetTitle("orig"))

	c := rec.Clone()
	assert.True(t, rec.Equal(c))
	require.NoError(t, c.SetTitle("changed"))
	assert.Equal(t, "orig", rec.Title())
	assert.False(t, rec.Equal(c))
	assert.False(t, rec.Equal(nil))

	var none *Record
	assert.True(t, none.Equal(nil))
}

func TestRecordEditAfterParse(t *testing.T) {
	data := join(tlv(field.TypeTitle, []byte{'x', 0x81}), tlv(field.TypeEndOfRecord, nil))
	rec, err := Parse(field.V2, data)
	require.NoError(t, err)

	require.NoError(t, rec.SetTitle(rec.Title()))
	out, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestRecordTouch(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	rec, err := New(field.V3, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, rec.Touch(now))
	ctime, ok := rec.Time(field.TypeCreationTime)
	require.True(t, ok)
	assert.True(t, now.Equal(ctime))

	later := now.Add(time.Hour)
	require.NoError(t, rec.Touch(later))
	ctime, _ = rec.Time(field.TypeCreationTime)
	mtime, _ := rec.Time(field.TypeLastModTime)
	assert.True(t, now.Equal(ctime))
	assert.True(t, later.Equal(mtime))

	v2, err := New(field.V2, rand.Reader)
	require.NoError(t, err)
	require.NoError(t, v2.Touch(now))
	assert.False(t, v2.Has(field.TypeLastModTime))
}

func typeIDs(r *Record) []field.TypeID {
	var ids []field.TypeID
	for _, f := range r.Fields() {
		ids = append(ids, f.Type())
	}
	return ids
}
