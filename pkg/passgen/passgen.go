// Package passgen generates random passwords from a character-class policy.
//
// The random source is always passed in explicitly. Production callers use
// crypto/rand.Reader; tests substitute a deterministic reader.
package passgen

import (
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Character set constants
const (
	charsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	charsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits    = "0123456789"
	charsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	// charsetAmbiguous is removed under EasyVision.
	charsetAmbiguous = "Il1|O0o"

	MinLength     = 4
	MaxLength     = 256
	DefaultLength = 24

	maxExcludeLength = 256
)

// Policy errors
var (
	ErrLength       = errors.New("passgen: password length out of range")
	ErrEmptyCharset = errors.New("passgen: character set is empty")
	ErrExclude      = errors.New("passgen: exclude string too long")
)

// Policy describes which characters a generated password may contain.
type Policy struct {
	Length     int
	Lowercase  bool
	Uppercase  bool
	Digits     bool
	Symbols    bool
	EasyVision bool   // drop look-alike characters such as 1, l and I
	Exclude    string // characters never used
}

// DefaultPolicy returns a policy using every character class.
func DefaultPolicy() Policy {
	return Policy{
		Length:    DefaultLength,
		Lowercase: true,
		Uppercase: true,
		Digits:    true,
		Symbols:   true,
	}
}

// Validate checks the length bounds and that at least one character remains.
func (p Policy) Validate() error {
	if p.Length < MinLength || p.Length > MaxLength {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrLength, p.Length, MinLength, MaxLength)
	}
	if len(p.Exclude) > maxExcludeLength {
		return fmt.Errorf("%w: at most %d characters", ErrExclude, maxExcludeLength)
	}
	if p.Charset() == "" {
		return ErrEmptyCharset
	}
	return nil
}

// classes returns the filtered character set of every enabled class.
func (p Policy) classes() []string {
	var out []string
	for _, c := range []struct {
		on  bool
		set string
	}{
		{p.Lowercase, charsetLowercase},
		{p.Uppercase, charsetUppercase},
		{p.Digits, charsetDigits},
		{p.Symbols, charsetSymbols},
	} {
		if !c.on {
			continue
		}
		set := removeChars(c.set, p.Exclude)
		if p.EasyVision {
			set = removeChars(set, charsetAmbiguous)
		}
		if set != "" {
			out = append(out, set)
		}
	}
	return out
}

// Charset returns every character the policy allows.
func (p Policy) Charset() string {
	return strings.Join(p.classes(), "")
}

// removeChars removes specified characters from a string
func removeChars(s, chars string) string {
	if chars == "" {
		return s
	}
	excludeSet := make(map[rune]bool)
	for _, c := range chars {
		excludeSet[c] = true
	}

	var result strings.Builder
	for _, c := range s {
		if !excludeSet[c] {
			result.WriteRune(c)
		}
	}
	return result.String()
}

// Generate returns a password satisfying p. When the length allows it, every
// enabled character class appears at least once.
func Generate(rand io.Reader, p Policy) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	classes := p.classes()
	charset := strings.Join(classes, "")

	password := make([]byte, 0, p.Length)
	if len(classes) <= p.Length {
		for _, set := range classes {
			c, err := pick(rand, set)
			if err != nil {
				return "", err
			}
			password = append(password, c)
		}
	}
	for len(password) < p.Length {
		c, err := pick(rand, charset)
		if err != nil {
			return "", err
		}
		password = append(password, c)
	}

	// Fisher-Yates, so the guaranteed characters are not always up front.
	for i := len(password) - 1; i > 0; i-- {
		j, err := randIndex(rand, i+1)
		if err != nil {
			return "", err
		}
		password[i], password[j] = password[j], password[i]
	}
	return string(password), nil
}

func pick(rand io.Reader, set string) (byte, error) {
	i, err := randIndex(rand, len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randIndex(rand io.Reader, n int) (int, error) {
	idx, err := cryptorand.Int(rand, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("passgen: failed to generate random number: %w", err)
	}
	return int(idx.Int64()), nil
}
