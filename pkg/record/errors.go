package record

import (
	"errors"
	"fmt"

	"github.com/forest6511/pwsafe/pkg/field"
)

// Record errors.
var (
	// ErrTruncatedRecord indicates a declared length running past the end of the stream.
	ErrTruncatedRecord = errors.New("record: truncated record")

	// ErrUnterminatedRecord indicates a V2/V3 stream ending without an end-of-record marker.
	ErrUnterminatedRecord = errors.New("record: unterminated record")

	// ErrInvalidType indicates a field type that is not valid for the record's version.
	ErrInvalidType = errors.New("record: field type not valid for record version")

	// ErrVersionMismatch indicates a field or record of another format version.
	ErrVersionMismatch = errors.New("record: version mismatch")

	// ErrMissingUUID indicates a V2/V3 record without a UUID field.
	ErrMissingUUID = errors.New("record: missing uuid")

	// ErrUnsupportedVersion indicates an unknown format version.
	ErrUnsupportedVersion = errors.New("record: unsupported format version")
)

// ParseError reports where in the decrypted stream a record failed to parse.
type ParseError struct {
	Offset  int64        // byte offset of the failing block header
	Type    field.TypeID // type id of the failing block, if HasType
	HasType bool
	Err     error
}

func (e *ParseError) Error() string {
	if e.HasType {
		return fmt.Sprintf("record: offset %d: type 0x%02x: %v", e.Offset, uint8(e.Type), e.Err)
	}
	return fmt.Sprintf("record: offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
