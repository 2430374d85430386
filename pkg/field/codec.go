package field

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Codec errors.
var (
	// ErrMalformedField indicates raw bytes that are invalid for the field's type.
	ErrMalformedField = errors.New("field: malformed field")

	// ErrInvalidValue indicates a value that cannot be encoded for the field's type.
	ErrInvalidValue = errors.New("field: invalid value")
)

// Kind selects the codec used for a field's raw bytes.
type Kind int

// Codec kinds.
const (
	KindOpaque     Kind = iota // raw bytes, kept verbatim
	KindString                 // single-byte text (Windows-1252)
	KindWideString             // UTF-16LE text
	KindUUID                   // 16 raw bytes
	KindTime                   // uint32 LE seconds since the Unix epoch
	KindInteger                // uint32 LE
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOpaque:
		return "opaque"
	case KindString:
		return "string"
	case KindWideString:
		return "wide-string"
	case KindUUID:
		return "uuid"
	case KindTime:
		return "time"
	case KindInteger:
		return "integer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Codec converts between raw field bytes and decoded values for one kind.
//
// Decoded value types per kind: string (KindString, KindWideString),
// uuid.UUID, time.Time (UTC, whole seconds), uint32 and []byte (KindOpaque).
type Codec struct {
	Kind    Kind
	decode  func(raw []byte) (any, error)
	encode  func(v any) ([]byte, error)
	compare func(a, b any) int
}

// Decode decodes raw bytes. It fails with ErrMalformedField rather than
// returning a partial value.
func (c Codec) Decode(raw []byte) (any, error) {
	return c.decode(raw)
}

// Encode returns the canonical encoding of v.
func (c Codec) Encode(v any) ([]byte, error) {
	return c.encode(v)
}

// Compare orders two decoded values of this codec's kind.
func (c Codec) Compare(a, b any) int {
	return c.compare(a, b)
}

// Lookup returns the codec for type t in version v. Unknown types get the
// opaque codec.
func Lookup(v Version, t TypeID) Codec {
	k, _ := KindOf(v, t)
	return codecs[k]
}

var (
	narrowText = charmap.Windows1252
	wideText   = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// decodeNarrow maps each byte to one rune. The five bytes Windows-1252
// leaves undefined map to the C1 controls of the same value, so every
// byte sequence decodes and re-encodes unchanged.
func decodeNarrow(raw []byte) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		if undefinedNarrow(rune(b)) {
			sb.WriteRune(rune(b))
			continue
		}
		sb.WriteRune(narrowText.DecodeByte(b))
	}
	return sb.String()
}

func encodeNarrow(s string) ([]byte, bool) {
	b := make([]byte, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size <= 1 {
				return nil, false
			}
		}
		if undefinedNarrow(r) {
			b = append(b, byte(r))
			continue
		}
		c, ok := narrowText.EncodeRune(r)
		if !ok {
			return nil, false
		}
		b = append(b, c)
	}
	return b, true
}

func undefinedNarrow(r rune) bool {
	switch r {
	case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
		return true
	}
	return false
}

// validUTF16 checks that every surrogate in the little-endian text is part
// of a high-low pair. On failure it returns the byte offset of the bad unit.
func validUTF16(raw []byte) (int, bool) {
	for i := 0; i < len(raw); i += 2 {
		u := rune(binary.LittleEndian.Uint16(raw[i:]))
		if !utf16.IsSurrogate(u) {
			continue
		}
		if u >= 0xDC00 || i+4 > len(raw) {
			return i, false
		}
		next := rune(binary.LittleEndian.Uint16(raw[i+2:]))
		if utf16.DecodeRune(u, next) == utf8.RuneError {
			return i, false
		}
		i += 2
	}
	return 0, true
}

var codecs = map[Kind]Codec{
	KindOpaque: {
		Kind: KindOpaque,
		decode: func(raw []byte) (any, error) {
			return bytes.Clone(raw), nil
		},
		encode: func(v any) ([]byte, error) {
			b, ok := v.([]byte)
			if !ok {
				return nil, typeError(KindOpaque, v)
			}
			return bytes.Clone(b), nil
		},
		compare: func(a, b any) int {
			return bytes.Compare(a.([]byte), b.([]byte))
		},
	},
	KindString: {
		Kind: KindString,
		decode: func(raw []byte) (any, error) {
			return decodeNarrow(raw), nil
		},
		encode: func(v any) ([]byte, error) {
			s, ok := v.(string)
			if !ok {
				return nil, typeError(KindString, v)
			}
			b, ok := encodeNarrow(s)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not representable in Windows-1252", ErrInvalidValue, s)
			}
			return b, nil
		},
		compare: compareStrings,
	},
	KindWideString: {
		Kind: KindWideString,
		decode: func(raw []byte) (any, error) {
			if len(raw)%2 != 0 {
				return nil, fmt.Errorf("%w: UTF-16 text has odd length %d", ErrMalformedField, len(raw))
			}
			if at, ok := validUTF16(raw); !ok {
				return nil, fmt.Errorf("%w: unpaired UTF-16 surrogate at byte %d", ErrMalformedField, at)
			}
			s, err := wideText.NewDecoder().Bytes(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedField, err)
			}
			return string(s), nil
		},
		encode: func(v any) ([]byte, error) {
			s, ok := v.(string)
			if !ok {
				return nil, typeError(KindWideString, v)
			}
			if !utf8.ValidString(s) {
				return nil, fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidValue, s)
			}
			b, err := wideText.NewEncoder().Bytes([]byte(s))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			return b, nil
		},
		compare: compareStrings,
	},
	KindUUID: {
		Kind: KindUUID,
		decode: func(raw []byte) (any, error) {
			u, err := uuid.FromBytes(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: uuid must be 16 bytes, got %d", ErrMalformedField, len(raw))
			}
			return u, nil
		},
		encode: func(v any) ([]byte, error) {
			u, ok := v.(uuid.UUID)
			if !ok {
				return nil, typeError(KindUUID, v)
			}
			return bytes.Clone(u[:]), nil
		},
		compare: func(a, b any) int {
			ua, ub := a.(uuid.UUID), b.(uuid.UUID)
			return bytes.Compare(ua[:], ub[:])
		},
	},
	KindTime: {
		Kind: KindTime,
		decode: func(raw []byte) (any, error) {
			if len(raw) != 4 {
				return nil, fmt.Errorf("%w: time must be 4 bytes, got %d", ErrMalformedField, len(raw))
			}
			return time.Unix(int64(binary.LittleEndian.Uint32(raw)), 0).UTC(), nil
		},
		encode: func(v any) ([]byte, error) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, typeError(KindTime, v)
			}
			secs := t.Unix()
			if secs < 0 || secs > math.MaxUint32 {
				return nil, fmt.Errorf("%w: time %s outside the 32-bit range", ErrInvalidValue, t.UTC().Format(time.RFC3339))
			}
			return binary.LittleEndian.AppendUint32(nil, uint32(secs)), nil
		},
		compare: func(a, b any) int {
			return cmp.Compare(a.(time.Time).Unix(), b.(time.Time).Unix())
		},
	},
	KindInteger: {
		Kind: KindInteger,
		decode: func(raw []byte) (any, error) {
			if len(raw) != 4 {
				return nil, fmt.Errorf("%w: integer must be 4 bytes, got %d", ErrMalformedField, len(raw))
			}
			return binary.LittleEndian.Uint32(raw), nil
		},
		encode: func(v any) ([]byte, error) {
			var n uint32
			switch x := v.(type) {
			case uint32:
				n = x
			case int:
				if x < 0 || int64(x) > math.MaxUint32 {
					return nil, fmt.Errorf("%w: %d outside the 32-bit range", ErrInvalidValue, x)
				}
				n = uint32(x)
			default:
				return nil, typeError(KindInteger, v)
			}
			return binary.LittleEndian.AppendUint32(nil, n), nil
		},
		compare: func(a, b any) int {
			return cmp.Compare(a.(uint32), b.(uint32))
		},
	},
}

func compareStrings(a, b any) int {
	return strings.Compare(a.(string), b.(string))
}

func typeError(k Kind, v any) error {
	return fmt.Errorf("%w: %T cannot be encoded as %s", ErrInvalidValue, v, k)
}
