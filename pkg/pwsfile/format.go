package pwsfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/twofish"

	"github.com/forest6511/pwsafe/pkg/crypto"
	"github.com/forest6511/pwsafe/pkg/field"
)

// V3 container layout.
const (
	v3SaltLength = 32
	v3KeyLength  = 32
	v3IVLength   = crypto.TwofishBlockSize
	v3MACLength  = sha256.Size
)

var (
	// v3Tag opens every V3 file.
	v3Tag = [4]byte{'P', 'W', 'S', '3'}

	// v3EOF separates the V3 ciphertext from its HMAC.
	v3EOF = []byte("PWS3-EOFPWS3-EOF")
)

// v2MarkerTitle and v2MarkerPassword make up the hidden first record of a V2
// file. Older readers show it as an ordinary entry.
const (
	v2MarkerTitle    = " !!!Version 2 File Format!!! Please upgrade to PasswordSafe 2.0 or later"
	v2MarkerPassword = "2.0"
)

// v2Marker is the encoded marker record.
var v2Marker = func() []byte {
	var b []byte
	for _, f := range []struct {
		typ   field.TypeID
		value string
	}{
		{field.TypeTitle, v2MarkerTitle},
		{field.TypePassword, v2MarkerPassword},
		{field.TypeEndOfRecord, ""},
	} {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(f.value)))
		b = append(b, byte(f.typ))
		b = append(b, f.value...)
	}
	return b
}()

// legacyHeader precedes the ciphertext of V1 and V2 files.
type legacyHeader struct {
	Rand     [crypto.LegacyRandLength]byte
	RandHash [20]byte
	Salt     [crypto.LegacySaltLength]byte
	IV       [crypto.BlowfishBlockSize]byte
}

func (h *legacyHeader) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func readLegacyHeader(r io.Reader) (*legacyHeader, error) {
	var h legacyHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrUnknownFormat, err)
	}
	return &h, nil
}

// v3Header precedes the ciphertext of V3 files. B1B2 and B3B4 hold the
// record key and the HMAC key, Twofish-ECB encrypted under the stretched
// passphrase.
type v3Header struct {
	Tag        [4]byte
	Salt       [v3SaltLength]byte
	Iterations uint32
	KeyHash    [sha256.Size]byte
	B1B2       [v3KeyLength]byte
	B3B4       [v3KeyLength]byte
	IV         [v3IVLength]byte
}

func (h *v3Header) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

func readV3Header(r io.Reader) (*v3Header, error) {
	var h v3Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: short V3 header: %v", ErrUnknownFormat, err)
	}
	if h.Tag != v3Tag {
		return nil, fmt.Errorf("%w: missing PWS3 tag", ErrUnknownFormat)
	}
	return &h, nil
}

// wrapKeys encrypts the record and HMAC keys into the header.
func (h *v3Header) wrapKeys(stretched, key, macKey []byte) error {
	c, err := twofish.NewCipher(stretched)
	if err != nil {
		return err
	}
	ecb(c.Encrypt, h.B1B2[:], key)
	ecb(c.Encrypt, h.B3B4[:], macKey)
	return nil
}

// unwrapKeys recovers the record and HMAC keys from the header.
func (h *v3Header) unwrapKeys(stretched []byte) (key, macKey []byte, err error) {
	c, err := twofish.NewCipher(stretched)
	if err != nil {
		return nil, nil, err
	}
	key = make([]byte, v3KeyLength)
	macKey = make([]byte, v3KeyLength)
	ecb(c.Decrypt, key, h.B1B2[:])
	ecb(c.Decrypt, macKey, h.B3B4[:])
	return key, macKey, nil
}

func ecb(fn func(dst, src []byte), dst, src []byte) {
	for i := 0; i < len(src); i += twofish.BlockSize {
		fn(dst[i:i+twofish.BlockSize], src[i:i+twofish.BlockSize])
	}
}

// v3DefaultHeaderRecord is the header record written to new V3 files: a
// single format-version field (0x030d, little-endian).
var v3DefaultHeaderRecord = []byte{
	2, 0, 0, 0, byte(field.TypeVersionString), 0x0d, 0x03,
	0, 0, 0, 0, byte(field.TypeEndOfRecord),
}

// hasPrefix reports whether the next bytes of a peeking reader equal p.
func hasPrefix(peek func(int) ([]byte, error), p []byte) bool {
	b, err := peek(len(p))
	return err == nil && bytes.Equal(b, p)
}
