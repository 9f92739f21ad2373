package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressSize is the number of bytes in an Address.
const AddressSize = 32

// ErrInvalidAddress is returned when an address string cannot be parsed.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an actor on the ledger.
type Address [AddressSize]byte

// ZeroAddress is the address of nobody.
var ZeroAddress Address

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String renders the address in raw "0:<hex>" form.
func (a Address) String() string {
	return "0:" + hex.EncodeToString(a[:])
}

// Short returns a shortened form for logs.
func (a Address) Short() string {
	s := hex.EncodeToString(a[:])
	return "0:" + s[:6] + ".." + s[len(s)-4:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses the raw "0:<hex>" form. The workchain prefix is optional.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "0:")
	if len(raw) != AddressSize*2 {
		return a, fmt.Errorf("%w: %q has wrong length", ErrInvalidAddress, s)
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
