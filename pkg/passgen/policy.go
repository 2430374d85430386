package passgen

import "fmt"

// Flag bits of the 32-bit password policy stored in V2 records (and kept as
// a deprecated field in V3). The low 12 bits hold the length.
const (
	policyLowercase  uint32 = 0x80000000
	policyUppercase  uint32 = 0x40000000
	policyDigits     uint32 = 0x20000000
	policySymbols    uint32 = 0x10000000
	policyHexDigits  uint32 = 0x08000000
	policyEasyVision uint32 = 0x04000000

	policyLengthMask uint32 = 0x00000fff
)

// EncodePolicy packs p into the record policy integer. Exclude is not
// representable and is dropped.
func EncodePolicy(p Policy) (uint32, error) {
	if p.Length < 0 || uint32(p.Length) > policyLengthMask {
		return 0, fmt.Errorf("%w: %d does not fit the policy field", ErrLength, p.Length)
	}
	v := uint32(p.Length)
	if p.Lowercase {
		v |= policyLowercase
	}
	if p.Uppercase {
		v |= policyUppercase
	}
	if p.Digits {
		v |= policyDigits
	}
	if p.Symbols {
		v |= policySymbols
	}
	if p.EasyVision {
		v |= policyEasyVision
	}
	return v, nil
}

// DecodePolicy unpacks a record policy integer. A hex-digits policy maps to
// digits plus the lowercase letters a-f.
func DecodePolicy(v uint32) Policy {
	p := Policy{
		Length:     int(v & policyLengthMask),
		Lowercase:  v&policyLowercase != 0,
		Uppercase:  v&policyUppercase != 0,
		Digits:     v&policyDigits != 0,
		Symbols:    v&policySymbols != 0,
		EasyVision: v&policyEasyVision != 0,
	}
	if v&policyHexDigits != 0 {
		p = Policy{
			Length:    p.Length,
			Lowercase: true,
			Digits:    true,
			Exclude:   "ghijklmnopqrstuvwxyz",
		}
	}
	return p
}
