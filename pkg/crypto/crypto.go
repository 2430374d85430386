// Package crypto provides the block-cipher primitives used by the pwsafe
// storage engine.
//
// This package implements CBC chaining over the two ciphers the file format
// uses and the legacy key schedules that feed them.
//
// # Ciphers
//
//   - Blowfish-CBC for V1 and V2 files. The file format stores 32-bit words
//     little-endian while the Blowfish primitive reads them big-endian, so
//     every buffer (and the IV) is byte-swapped word by word before and after
//     the cipher call. Leaving the swap out does not fail, it silently
//     produces data no other implementation can read.
//   - Twofish-CBC for V3 files. No byte swapping is applied.
//
// # Chaining
//
// A CBC value keeps its chaining state between calls: the last ciphertext
// block of one Encrypt or Decrypt call becomes the IV of the next. A stream
// can therefore be processed block by block with the same result as a single
// call over the whole buffer.
//
// # Example Usage
//
//	c, err := crypto.NewBlowfishCBC(key, nil) // all-zero IV
//	if err != nil {
//	    return err
//	}
//	buf := make([]byte, 16) // multiple of c.BlockSize()
//	if err := c.Encrypt(buf); err != nil {
//	    return err
//	}
//
//	// Securely wipe key material
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/twofish"
)

// Key and block size limits of the supported ciphers.
const (
	// BlowfishBlockSize is the Blowfish block size in bytes.
	BlowfishBlockSize = blowfish.BlockSize

	// BlowfishMinKeyLength is the shortest key Blowfish accepts.
	BlowfishMinKeyLength = 1

	// BlowfishMaxKeyLength is the longest key Blowfish accepts (448 bits).
	BlowfishMaxKeyLength = 56

	// TwofishBlockSize is the Twofish block size in bytes.
	TwofishBlockSize = twofish.BlockSize
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is outside the cipher's supported range.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length")

	// ErrInvalidIVLength indicates the IV is not exactly one block long.
	ErrInvalidIVLength = errors.New("crypto: invalid IV length")

	// ErrBlockAlignment indicates a buffer is not a multiple of the block size.
	ErrBlockAlignment = errors.New("crypto: buffer is not a multiple of the block size")
)

// CBC is a block cipher in cipher-block-chaining mode that encrypts and
// decrypts buffers in place.
//
// CBC is not safe for concurrent use; it carries chaining state.
type CBC struct {
	block cipher.Block
	iv    []byte // chaining value in the cipher's native byte order
	swap  bool   // byte-swap 32-bit words around every cipher call
}

// NewBlowfishCBC creates a Blowfish-CBC cipher with the word byte-order
// normalisation of the legacy file format.
//
// Parameters:
//   - key: 1 to 56 bytes
//   - iv: 8 bytes, or nil for the all-zero IV
//
// Returns ErrInvalidKeyLength or ErrInvalidIVLength on bad input.
func NewBlowfishCBC(key, iv []byte) (*CBC, error) {
	if len(key) < BlowfishMinKeyLength || len(key) > BlowfishMaxKeyLength {
		return nil, fmt.Errorf("%w: blowfish accepts %d-%d bytes, got %d",
			ErrInvalidKeyLength, BlowfishMinKeyLength, BlowfishMaxKeyLength, len(key))
	}

	block, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	return newCBC(block, iv, true)
}

// NewTwofishCBC creates a Twofish-CBC cipher as used by V3 files.
//
// Parameters:
//   - key: 16, 24 or 32 bytes
//   - iv: 16 bytes, or nil for the all-zero IV
func NewTwofishCBC(key, iv []byte) (*CBC, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: twofish accepts 16, 24 or 32 bytes, got %d", ErrInvalidKeyLength, len(key))
	}

	block, err := twofish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	return newCBC(block, iv, false)
}

func newCBC(block cipher.Block, iv []byte, swap bool) (*CBC, error) {
	c := &CBC{
		block: block,
		iv:    make([]byte, block.BlockSize()),
		swap:  swap,
	}
	if iv != nil {
		if err := c.SetCBCIV(iv); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BlockSize returns the cipher block size in bytes.
func (c *CBC) BlockSize() int {
	return c.block.BlockSize()
}

// SetCBCIV replaces the chaining value. The IV is given in file byte order
// and normalised the same way as data buffers. The caller's slice is not
// modified.
func (c *CBC) SetCBCIV(iv []byte) error {
	if len(iv) != c.block.BlockSize() {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidIVLength, c.block.BlockSize(), len(iv))
	}
	copy(c.iv, iv)
	if c.swap {
		swapWords(c.iv)
	}
	return nil
}

// Encrypt encrypts buf in place. len(buf) must be a multiple of BlockSize.
func (c *CBC) Encrypt(buf []byte) error {
	if err := c.checkAlignment(buf); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	if c.swap {
		swapWords(buf)
	}
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(buf, buf)
	copy(c.iv, buf[len(buf)-len(c.iv):])
	if c.swap {
		swapWords(buf)
	}
	return nil
}

// Decrypt decrypts buf in place. len(buf) must be a multiple of BlockSize.
func (c *CBC) Decrypt(buf []byte) error {
	if err := c.checkAlignment(buf); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	if c.swap {
		swapWords(buf)
	}
	next := make([]byte, len(c.iv))
	copy(next, buf[len(buf)-len(next):])
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(buf, buf)
	copy(c.iv, next)
	if c.swap {
		swapWords(buf)
	}
	return nil
}

func (c *CBC) checkAlignment(buf []byte) error {
	if bs := c.block.BlockSize(); len(buf)%bs != 0 {
		return fmt.Errorf("%w: %d bytes with block size %d", ErrBlockAlignment, len(buf), bs)
	}
	return nil
}

// swapWords reverses the byte order of every complete 32-bit word in b.
func swapWords(b []byte) {
	for i := 0; i+4 <= len(b); i += 4 {
		binary.LittleEndian.PutUint32(b[i:], binary.BigEndian.Uint32(b[i:]))
	}
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
// Use it on keys and passphrases once they are no longer needed.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
