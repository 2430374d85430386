// Package pwsfile reads and writes encrypted password files.
//
// Three on-disk versions are supported:
//
//   - V1: Blowfish-CBC container holding untagged three-block records.
//   - V2: the V1 container whose first record is a hidden version marker,
//     followed by tagged records.
//   - V3: "PWS3" container with a stretched passphrase, Twofish-CBC records
//     and an HMAC-SHA256 trailer.
//
// Version detection is automatic on read. Files are always written in the
// version they were created or opened with.
package pwsfile

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forest6511/pwsafe/pkg/crypto"
	"github.com/forest6511/pwsafe/pkg/datastore"
	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/record"
	"github.com/forest6511/pwsafe/pkg/stream"
)

// FileMode is the permission of saved files.
const FileMode = 0600

// File is an opened password file: its records and the container settings
// needed to write it back.
type File struct {
	version    field.Version
	store      *datastore.Datastore
	iterations uint32
	header     *record.Record // V3 header record, written back unchanged
}

// New returns an empty file of version v.
func New(v field.Version) (*File, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", record.ErrUnsupportedVersion, int(v))
	}
	f := &File{version: v, store: datastore.New(v)}
	if v == field.V3 {
		f.iterations = crypto.MinStretchIterations
		hdr, err := record.Parse(field.V3, v3DefaultHeaderRecord)
		if err != nil {
			return nil, err
		}
		f.header = hdr
	}
	return f, nil
}

// Version returns the file's format version.
func (f *File) Version() field.Version {
	return f.version
}

// Store returns the file's datastore.
func (f *File) Store() *datastore.Datastore {
	return f.store
}

// Iterations returns the V3 key-stretch iteration count.
func (f *File) Iterations() uint32 {
	return f.iterations
}

// SetIterations sets the V3 key-stretch iteration count used by the next
// write. It has no effect on V1/V2 files.
func (f *File) SetIterations(n uint32) error {
	if n < crypto.MinStretchIterations {
		return fmt.Errorf("%w: %d < %d", ErrIterations, n, crypto.MinStretchIterations)
	}
	f.iterations = n
	return nil
}

// Open reads the file at path.
func Open(path string, passphrase []byte) (*File, error) {
	fh, err := os.Open(path) //nolint:gosec // path is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()
	return Read(fh, passphrase)
}

// Read decrypts and parses a password file of any supported version.
func Read(r io.Reader, passphrase []byte) (*File, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	br := bufio.NewReader(r)
	if hasPrefix(br.Peek, v3Tag[:]) {
		return readV3(br, passphrase)
	}
	return readLegacy(br, passphrase)
}

func readLegacy(r io.Reader, passphrase []byte) (*File, error) {
	h, err := readLegacyHeader(r)
	if err != nil {
		return nil, err
	}

	randHash, err := crypto.LegacyRandHash(passphrase, h.Rand[:])
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(randHash, h.RandHash[:]) != 1 {
		return nil, ErrInvalidPassphrase
	}

	key := crypto.LegacyKey(passphrase, h.Salt[:])
	defer crypto.SecureWipe(key)
	c, err := crypto.NewBlowfishCBC(key, h.IV[:])
	if err != nil {
		return nil, err
	}

	plain := bufio.NewReader(stream.NewReader(r, c))
	v := field.V1
	if hasPrefix(plain.Peek, v2Marker) {
		v = field.V2
	}

	dec := record.NewDecoder(plain, v)
	dec.SetBlockSize(crypto.BlowfishBlockSize)
	if v == field.V2 {
		if _, err := dec.Decode(); err != nil {
			return nil, fmt.Errorf("failed to read version marker: %w", err)
		}
	}

	f := &File{version: v, store: datastore.New(v)}
	if err := f.store.Load(dec); err != nil {
		return nil, err
	}
	return f, nil
}

func readV3(r io.Reader, passphrase []byte) (*File, error) {
	h, err := readV3Header(r)
	if err != nil {
		return nil, err
	}

	stretched := crypto.StretchKey(passphrase, h.Salt[:], h.Iterations)
	defer crypto.SecureWipe(stretched)
	keyHash := sha256.Sum256(stretched)
	if subtle.ConstantTimeCompare(keyHash[:], h.KeyHash[:]) != 1 {
		return nil, ErrInvalidPassphrase
	}
	key, macKey, err := h.unwrapKeys(stretched)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(key)
	defer crypto.SecureWipe(macKey)

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	trailer := len(v3EOF) + v3MACLength
	if len(rest) < trailer || !bytes.Equal(rest[len(rest)-trailer:len(rest)-v3MACLength], v3EOF) {
		return nil, fmt.Errorf("%w: missing end-of-file marker", ErrIntegrity)
	}
	ciphertext, storedMAC := rest[:len(rest)-trailer], rest[len(rest)-v3MACLength:]

	c, err := crypto.NewTwofishCBC(key, h.IV[:])
	if err != nil {
		return nil, err
	}
	plain, err := io.ReadAll(stream.NewReader(bytes.NewReader(ciphertext), c))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt records: %w", err)
	}
	defer crypto.SecureWipe(plain)

	dec := record.NewDecoder(bytes.NewReader(plain), field.V3)
	dec.SetBlockSize(crypto.TwofishBlockSize)
	header, err := dec.Decode()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header record", ErrIntegrity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header record: %w", err)
	}

	f := &File{version: field.V3, store: datastore.New(field.V3), iterations: h.Iterations, header: header}
	if err := f.store.Load(dec); err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, macKey)
	mac.Write(plain[:dec.Offset()])
	if !hmac.Equal(mac.Sum(nil), storedMAC) {
		return nil, fmt.Errorf("%w: HMAC mismatch", ErrIntegrity)
	}
	return f, nil
}

// Write encrypts the file under passphrase to w. Salts, IVs and keys are
// drawn fresh from rand on every write.
func (f *File) Write(w io.Writer, passphrase []byte, rand io.Reader) error {
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}
	if f.version == field.V3 {
		return f.writeV3(w, passphrase, rand)
	}
	return f.writeLegacy(w, passphrase, rand)
}

func (f *File) writeLegacy(w io.Writer, passphrase []byte, rand io.Reader) error {
	var h legacyHeader
	for _, b := range [][]byte{h.Rand[:], h.Salt[:], h.IV[:]} {
		if _, err := io.ReadFull(rand, b); err != nil {
			return fmt.Errorf("failed to generate header: %w", err)
		}
	}
	randHash, err := crypto.LegacyRandHash(passphrase, h.Rand[:])
	if err != nil {
		return err
	}
	copy(h.RandHash[:], randHash)

	key := crypto.LegacyKey(passphrase, h.Salt[:])
	defer crypto.SecureWipe(key)
	c, err := crypto.NewBlowfishCBC(key, h.IV[:])
	if err != nil {
		return err
	}

	if err := h.write(w); err != nil {
		return err
	}
	sw := stream.NewWriter(w, c)
	if f.version == field.V2 {
		if _, err := sw.Write(v2Marker); err != nil {
			return fmt.Errorf("failed to write version marker: %w", err)
		}
	}
	if err := f.writeRecords(record.NewEncoder(sw)); err != nil {
		return err
	}
	return sw.Close()
}

func (f *File) writeV3(w io.Writer, passphrase []byte, rand io.Reader) error {
	if f.iterations < crypto.MinStretchIterations {
		return fmt.Errorf("%w: %d < %d", ErrIterations, f.iterations, crypto.MinStretchIterations)
	}
	h := v3Header{Tag: v3Tag, Iterations: f.iterations}
	key := make([]byte, v3KeyLength)
	macKey := make([]byte, v3KeyLength)
	defer crypto.SecureWipe(key)
	defer crypto.SecureWipe(macKey)
	for _, b := range [][]byte{h.Salt[:], key, macKey, h.IV[:]} {
		if _, err := io.ReadFull(rand, b); err != nil {
			return fmt.Errorf("failed to generate header: %w", err)
		}
	}

	stretched := crypto.StretchKey(passphrase, h.Salt[:], h.Iterations)
	defer crypto.SecureWipe(stretched)
	h.KeyHash = sha256.Sum256(stretched)
	if err := h.wrapKeys(stretched, key, macKey); err != nil {
		return err
	}

	c, err := crypto.NewTwofishCBC(key, h.IV[:])
	if err != nil {
		return err
	}
	if err := h.write(w); err != nil {
		return err
	}

	sw := stream.NewWriter(w, c)
	mac := hmac.New(sha256.New, macKey)
	enc := record.NewEncoder(io.MultiWriter(sw, mac))
	if err := enc.Encode(f.header); err != nil {
		return fmt.Errorf("failed to write header record: %w", err)
	}
	if err := f.writeRecords(enc); err != nil {
		return err
	}
	if err := sw.Close(); err != nil {
		return err
	}

	if _, err := w.Write(v3EOF); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	if _, err := w.Write(mac.Sum(nil)); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	return nil
}

func (f *File) writeRecords(enc *record.Encoder) error {
	for i, rec := range f.store.Records() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return nil
}

// Save writes the file to path atomically: the data goes to a temporary file
// in the same directory, is synced, and then renamed over path.
func (f *File) Save(path string, passphrase []byte) error {
	if err := checkDiskSpaceForWrite(path, f.sizeHint()); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Chmod(FileMode); err != nil {
		return fail(fmt.Errorf("failed to set permissions: %w", err))
	}
	if err := f.Write(tmp, passphrase, rand.Reader); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// sizeHint estimates the encoded size of the file from the plaintext
// record stream plus an allowance for the fixed headers, padding and trailer.
func (f *File) sizeHint() int {
	enc := record.NewEncoder(io.Discard)
	if f.header != nil {
		_ = enc.Encode(f.header)
	}
	for _, rec := range f.store.Records() {
		// Save reports encoding failures itself.
		_ = enc.Encode(rec)
	}
	return 256 + int(enc.Written())
}
