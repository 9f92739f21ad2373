package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NanoPerCoin is the number of nano units in one coin.
const NanoPerCoin = 1_000_000_000

// ErrInvalidAmount is returned when a coin amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid coin amount")

// Coins is an amount of the native currency in nano units.
type Coins int64

// FromNano wraps a raw nano amount.
func FromNano(n int64) Coins {
	return Coins(n)
}

// Nano returns the raw nano amount.
func (c Coins) Nano() int64 {
	return int64(c)
}

// ParseCoins parses a decimal coin amount such as "10", "0.05" or "1.000000001".
func ParseCoins(s string) (Coins, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("%w: %q has more than 9 decimals", ErrInvalidAmount, s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
		}
	}
	n := w*NanoPerCoin + f
	if neg {
		n = -n
	}
	return Coins(n), nil
}

// MustParseCoins is like ParseCoins but panics on error. Intended for
// constants and tests.
func MustParseCoins(s string) Coins {
	c, err := ParseCoins(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the amount in coins, trimming trailing zeros.
func (c Coins) String() string {
	n := int64(c)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	whole := n / NanoPerCoin
	frac := n % NanoPerCoin
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fs
}

// MarshalText implements encoding.TextMarshaler.
func (c Coins) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is what config
// files, environment variables and JSON bodies go through.
func (c *Coins) UnmarshalText(text []byte) error {
	v, err := ParseCoins(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
