package crypto

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is fixed by the legacy file format
	"crypto/sha256"
	"fmt"
)

// Key schedule constants fixed by the file format.
const (
	// LegacyRandLength is the length of the random verifier seed in V1/V2 headers.
	LegacyRandLength = 8

	// LegacySaltLength is the length of the V1/V2 key salt.
	LegacySaltLength = sha1.Size

	// legacyRandHashRounds is how often the verifier seed is encrypted.
	legacyRandHashRounds = 1000

	// MinStretchIterations is the lowest iteration count accepted for V3 key stretching.
	MinStretchIterations = 2048
)

// LegacyKey derives the Blowfish record key of a V1/V2 file:
// SHA1(passphrase || salt). The 20-byte result is a valid Blowfish key.
func LegacyKey(passphrase, salt []byte) []byte {
	h := sha1.New() //nolint:gosec
	h.Write(passphrase)
	h.Write(salt)
	return h.Sum(nil)
}

// LegacyRandHash computes the passphrase verifier stored in V1/V2 headers.
//
// SHA1(rnd || 0x00 0x00 || passphrase) keys a Blowfish-CBC cipher with a zero
// IV; an 8-byte copy of rnd is encrypted 1000 times with it and the result is
// hashed once more as SHA1(buffer || 0x00 0x00).
func LegacyRandHash(passphrase, rnd []byte) ([]byte, error) {
	if len(rnd) != LegacyRandLength {
		return nil, fmt.Errorf("crypto: verifier seed must be %d bytes, got %d", LegacyRandLength, len(rnd))
	}

	h := sha1.New() //nolint:gosec
	h.Write(rnd)
	h.Write([]byte{0, 0})
	h.Write(passphrase)
	tempKey := h.Sum(nil)
	defer SecureWipe(tempKey)

	c, err := NewBlowfishCBC(tempKey, nil)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, LegacyRandLength)
	copy(buf, rnd)
	for i := 0; i < legacyRandHashRounds; i++ {
		if err := c.Encrypt(buf); err != nil {
			return nil, err
		}
	}

	h.Reset()
	h.Write(buf)
	h.Write([]byte{0, 0})
	return h.Sum(nil), nil
}

// StretchKey derives the V3 stretched passphrase key P':
// X0 = SHA256(passphrase || salt), Xi = SHA256(Xi-1) for the given number of
// iterations. The result is 32 bytes.
func StretchKey(passphrase, salt []byte, iterations uint32) []byte {
	h := sha256.New()
	h.Write(passphrase)
	h.Write(salt)
	x := h.Sum(nil)
	for i := uint32(0); i < iterations; i++ {
		sum := sha256.Sum256(x)
		copy(x, sum[:])
	}
	return x
}
