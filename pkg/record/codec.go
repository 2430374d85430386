package record

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/forest6511/pwsafe/pkg/field"
)

const (
	lengthSize = 4
	headerSize = lengthSize + 1

	// v1NameSeparator joins title and username in a V1 name block.
	v1NameSeparator = "\u00ad"
	// v1DefaultUser marks a V1 name whose username is the database default.
	v1DefaultUser = "\u00a0"
)

// v1Layout is the fixed block order of a V1 record.
var v1Layout = [...]field.TypeID{field.TypeTitle, field.TypePassword, field.TypeNotes}

// Decoder reads records of one format version from a decrypted stream.
type Decoder struct {
	r         *bufio.Reader
	version   field.Version
	offset    int64
	blockSize int
}

// NewDecoder returns a decoder reading version v records from r.
func NewDecoder(r io.Reader, v field.Version) *Decoder {
	return &Decoder{r: bufio.NewReader(r), version: v}
}

// SetBlockSize declares the cipher block size of the underlying stream. A
// trailing run of fewer than n zero bytes after the last record is then
// treated as stream padding instead of a truncated record.
func (d *Decoder) SetBlockSize(n int) {
	d.blockSize = n
}

// Offset returns the number of bytes consumed by decoded records. Discarded
// padding is not counted.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Version returns the format version being decoded.
func (d *Decoder) Version() field.Version {
	return d.version
}

// Decode reads the next record. It returns io.EOF when the stream ends
// cleanly between records. Framing failures are returned as *ParseError.
func (d *Decoder) Decode() (*Record, error) {
	if !d.version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(d.version))
	}
	end, err := d.atEnd()
	if err != nil {
		return nil, err
	}
	if end {
		return nil, io.EOF
	}
	if d.version == field.V1 {
		return d.decodeV1()
	}
	return d.decodeTLV()
}

// atEnd reports whether only padding remains.
func (d *Decoder) atEnd() (bool, error) {
	want := max(d.blockSize, 1)
	b, err := d.r.Peek(want)
	if len(b) == 0 {
		if err == io.EOF {
			return true, nil
		}
		return false, err
	}
	if len(b) < want && err == io.EOF && isZero(b) {
		_, _ = d.r.Discard(len(b))
		return true, nil
	}
	return false, nil
}

func (d *Decoder) decodeTLV() (*Record, error) {
	rec := newRecord(d.version)
	for {
		at := d.offset
		var hdr [headerSize]byte
		n, err := io.ReadFull(d.r, hdr[:])
		d.offset += int64(n)
		switch {
		case err == io.EOF:
			return nil, &ParseError{Offset: at, Err: ErrUnterminatedRecord}
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, &ParseError{Offset: at, Err: fmt.Errorf("%w: %d of %d header bytes", ErrTruncatedRecord, n, headerSize)}
		case err != nil:
			return nil, err
		}

		typ := field.TypeID(hdr[lengthSize])
		payload, err := d.readPayload(binary.LittleEndian.Uint32(hdr[:lengthSize]))
		if err != nil {
			return nil, &ParseError{Offset: at, Type: typ, HasType: true, Err: err}
		}
		if typ == field.TypeEndOfRecord {
			if len(payload) != 0 {
				return nil, &ParseError{Offset: at, Type: typ, HasType: true,
					Err: fmt.Errorf("%w: end-of-record marker carries %d bytes", field.ErrMalformedField, len(payload))}
			}
			return rec, nil
		}

		f, err := field.New(d.version, typ, payload)
		if err != nil {
			return nil, &ParseError{Offset: at, Type: typ, HasType: true, Err: err}
		}
		rec.put(f)
	}
}

func (d *Decoder) decodeV1() (*Record, error) {
	var blocks [len(v1Layout)][]byte
	for i, typ := range v1Layout {
		at := d.offset
		var hdr [lengthSize]byte
		n, err := io.ReadFull(d.r, hdr[:])
		d.offset += int64(n)
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ParseError{Offset: at, Type: typ, HasType: true,
				Err: fmt.Errorf("%w: V1 record ends after %d of %d blocks", ErrTruncatedRecord, i, len(v1Layout))}
		}
		if err != nil {
			return nil, err
		}

		payload, err := d.readPayload(binary.LittleEndian.Uint32(hdr[:]))
		if err != nil {
			return nil, &ParseError{Offset: at, Type: typ, HasType: true, Err: err}
		}
		blocks[i] = payload
	}

	rec := newRecord(field.V1)
	name, err := field.New(field.V1, field.TypeTitle, blocks[0])
	if err != nil {
		return nil, &ParseError{Offset: d.offset, Type: field.TypeTitle, HasType: true, Err: err}
	}
	title, username := splitV1Name(name.Text())
	if err := rec.SetTitle(title); err != nil {
		return nil, err
	}
	if username != "" {
		if err := rec.SetUsername(username); err != nil {
			return nil, err
		}
	}
	for i, typ := range v1Layout[1:] {
		f, err := field.New(field.V1, typ, blocks[i+1])
		if err != nil {
			return nil, &ParseError{Offset: d.offset, Type: typ, HasType: true, Err: err}
		}
		rec.put(f)
	}
	return rec, nil
}

func (d *Decoder) readPayload(length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, d.r, int64(length))
	d.offset += n
	if err == io.EOF {
		return nil, fmt.Errorf("%w: declared %d bytes, %d remain", ErrTruncatedRecord, length, n)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitV1Name(name string) (title, username string) {
	if t, u, ok := strings.Cut(name, v1NameSeparator); ok {
		return t, u
	}
	if t, _, ok := strings.Cut(name, v1DefaultUser); ok {
		return t, ""
	}
	return name, ""
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Encoder writes records to a plaintext stream.
type Encoder struct {
	w io.Writer
	n int64
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one record.
func (e *Encoder) Encode(r *Record) error {
	b, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := e.w.Write(b)
	e.n += int64(n)
	return err
}

// Written returns the number of bytes written so far.
func (e *Encoder) Written() int64 {
	return e.n
}

// MarshalBinary serialises the record in its version's on-disk layout. V2/V3
// fields are emitted in insertion order followed by the end marker.
func (r *Record) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if r.version == field.V1 {
		name := r.Title()
		if u := r.Username(); u != "" {
			name += v1NameSeparator + u
		}
		nf, err := field.FromValue(field.V1, field.TypeTitle, name)
		if err != nil {
			return nil, err
		}
		blocks := [...][]byte{nf.Bytes(), r.raw(field.TypePassword), r.raw(field.TypeNotes)}
		for _, b := range blocks {
			if err := writeBlock(&buf, b, nil); err != nil {
				return nil, err
			}
		}
		return buf.Bytes(), nil
	}

	if !r.version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(r.version))
	}
	for _, f := range r.Fields() {
		typ := f.Type()
		if err := writeBlock(&buf, f.Bytes(), &typ); err != nil {
			return nil, err
		}
	}
	end := field.TypeEndOfRecord
	if err := writeBlock(&buf, nil, &end); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) raw(t field.TypeID) []byte {
	if f, ok := r.fields[t]; ok {
		return f.Bytes()
	}
	return nil
}

func writeBlock(buf *bytes.Buffer, payload []byte, typ *field.TypeID) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("record: block of %d bytes exceeds the 32-bit length field", len(payload))
	}
	buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(payload))))
	if typ != nil {
		buf.WriteByte(byte(*typ))
	}
	buf.Write(payload)
	return nil
}

// Parse decodes exactly one record from data.
func Parse(v field.Version, data []byte) (*Record, error) {
	d := NewDecoder(bytes.NewReader(data), v)
	rec, err := d.Decode()
	if err == io.EOF {
		if v == field.V1 {
			return nil, &ParseError{Err: fmt.Errorf("%w: empty input", ErrTruncatedRecord)}
		}
		return nil, &ParseError{Err: ErrUnterminatedRecord}
	}
	return rec, err
}
