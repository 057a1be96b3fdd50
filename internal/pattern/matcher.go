// Package pattern compiles and evaluates vanity address patterns.
package pattern

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/screa/create3-salt-miner/pkg/types"
)

// AddressHexLen is the number of hex digits in an address, without 0x
const AddressHexLen = 2 * common.AddressLength

// Matcher is a compiled PatternSpec. It is immutable and safe for concurrent use.
type Matcher struct {
	prefix        []byte
	suffix        []byte
	leadingZeros  int
	caseSensitive bool
}

// Compile validates spec and prepares it for matching. Prefix and suffix may carry
// a 0x marker. Each constraint is checked independently against its own window, so
// overlapping prefix and suffix windows must agree on the shared digits.
func Compile(spec types.PatternSpec) (*Matcher, error) {
	prefix, err := cleanHex("prefix", spec.Prefix)
	if err != nil {
		return nil, err
	}
	suffix, err := cleanHex("suffix", spec.Suffix)
	if err != nil {
		return nil, err
	}

	m := &Matcher{caseSensitive: spec.CaseSensitive}
	if spec.LeadingZeros != nil {
		n := *spec.LeadingZeros
		if n < 0 || n > AddressHexLen {
			return nil, fmt.Errorf("%w: leading zeros must be between 0 and %d, got %d", types.ErrInvalidPattern, AddressHexLen, n)
		}
		m.leadingZeros = n
	}
	if prefix == "" && suffix == "" && spec.LeadingZeros == nil {
		return nil, fmt.Errorf("%w: no prefix, suffix or leading zeros specified", types.ErrInvalidPattern)
	}

	if !spec.CaseSensitive {
		prefix = strings.ToLower(prefix)
		suffix = strings.ToLower(suffix)
	}
	m.prefix = []byte(prefix)
	m.suffix = []byte(suffix)
	return m, nil
}

// Match reports whether addr satisfies every constraint of the pattern.
func (m *Matcher) Match(addr common.Address) bool {
	var buf [AddressHexLen]byte
	hex.Encode(buf[:], addr[:])
	return m.matchHex(buf[:])
}

// MatchHex is Match for an already rendered address, with or without 0x.
// Case-insensitive patterns fold the address to lowercase first.
func (m *Matcher) MatchHex(addr string) bool {
	addr = strip0x(addr)
	if !m.caseSensitive {
		addr = strings.ToLower(addr)
	}
	return m.matchHex([]byte(addr))
}

func (m *Matcher) matchHex(h []byte) bool {
	if len(h) < m.leadingZeros || len(h) < len(m.prefix) || len(h) < len(m.suffix) {
		return false
	}
	for i := 0; i < m.leadingZeros; i++ {
		if h[i] != '0' {
			return false
		}
	}
	for i, c := range m.prefix {
		if h[i] != c {
			return false
		}
	}
	off := len(h) - len(m.suffix)
	for i, c := range m.suffix {
		if h[off+i] != c {
			return false
		}
	}
	return true
}

// Difficulty returns the expected number of attempts to find a match, assuming
// uniformly distributed addresses. Overlapping constraints are counted once.
func (m *Matcher) Difficulty() float64 {
	fixed := max(m.leadingZeros, len(m.prefix))
	if fixed+len(m.suffix) > AddressHexLen {
		fixed = AddressHexLen
	} else {
		fixed += len(m.suffix)
	}
	d := 1.0
	for i := 0; i < fixed; i++ {
		d *= 16
	}
	return d
}

// String returns a human-readable description of the pattern
func (m *Matcher) String() string {
	var parts []string
	if len(m.prefix) > 0 {
		parts = append(parts, "prefix: "+string(m.prefix))
	}
	if len(m.suffix) > 0 {
		parts = append(parts, "suffix: "+string(m.suffix))
	}
	if m.leadingZeros > 0 || (len(m.prefix) == 0 && len(m.suffix) == 0) {
		parts = append(parts, fmt.Sprintf("leading zeros: %d", m.leadingZeros))
	}
	if m.caseSensitive {
		parts = append(parts, "case-sensitive")
	}
	return strings.Join(parts, ", ")
}

func cleanHex(field, s string) (string, error) {
	s = strip0x(strings.TrimSpace(s))
	if len(s) > AddressHexLen {
		return "", fmt.Errorf("%w: %s %q is longer than %d hex digits", types.ErrInvalidPattern, field, s, AddressHexLen)
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return "", fmt.Errorf("%w: %s %q contains non-hex character %q", types.ErrInvalidPattern, field, s, s[i])
		}
	}
	return s, nil
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
