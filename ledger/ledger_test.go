package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tmpl := TemplateID(rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "template"))
		params := rapid.SliceOf(rapid.Byte()).Draw(t, "params")

		a := Derive(tmpl, params)
		b := Derive(tmpl, append([]byte(nil), params...))
		if a != b {
			t.Fatalf("derive not deterministic: %s != %s", a, b)
		}
		if a != (StateInit{Template: tmpl, Params: params}).Address() {
			t.Fatalf("StateInit.Address disagrees with Derive")
		}
	})
}

func TestDeriveSeparatesTemplateAndParams(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	a := Derive("ab", []byte("c"))
	b := Derive("a", []byte("bc"))
	assert.NotEqual(t, a, b)

	assert.NotEqual(t, Derive("track", nil), Derive("collection", nil))
}

func TestDeriveDistinctParams(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.String().Draw(t, "x")
		y := rapid.String().Draw(t, "y")
		if x == y {
			t.Skip("equal inputs")
		}
		if Derive("track", NewParams().String(x).Bytes()) == Derive("track", NewParams().String(y).Bytes()) {
			t.Fatalf("collision for %q and %q", x, y)
		}
	})
}

func TestParamsRoundTrip(t *testing.T) {
	owner := Derive("wallet", []byte("alice"))
	col := Derive("collection", []byte("x"))

	enc := NewParams().String("Song").OptAddress(&col).OptAddress(nil).Address(owner).Bytes()
	r := ReadParams(enc)

	title, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "Song", title)

	got, err := r.OptAddress()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, col, *got)

	none, err := r.OptAddress()
	require.NoError(t, err)
	assert.Nil(t, none)

	addr, err := r.Address()
	require.NoError(t, err)
	assert.Equal(t, owner, addr)

	require.NoError(t, r.Done())
}

func TestParamsMalformed(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(*ParamsReader) error
	}{
		{"empty string", nil, func(r *ParamsReader) error { _, err := r.String(); return err }},
		{"wrong tag", NewParams().Address(Address{}).Bytes(), func(r *ParamsReader) error { _, err := r.String(); return err }},
		{"short address", []byte{tagAddress, 1, 2}, func(r *ParamsReader) error { _, err := r.Address(); return err }},
		{"string overrun", []byte{tagString, 10, 'a'}, func(r *ParamsReader) error { _, err := r.String(); return err }},
		{"trailing", NewParams().String("x").Bytes(), func(r *ParamsReader) error { return r.Done() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(ReadParams(tt.buf))
			assert.ErrorIs(t, err, ErrMalformedParams)
		})
	}
}

func TestAddressText(t *testing.T) {
	a := Derive("catalog", []byte("owner"))
	text, err := a.MarshalText()
	require.NoError(t, err)

	var b Address
	require.NoError(t, b.UnmarshalText(text))
	assert.Equal(t, a, b)

	noPrefix, err := ParseAddress(a.String()[2:])
	require.NoError(t, err)
	assert.Equal(t, a, noPrefix)

	_, err = ParseAddress("0:abcd")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ParseAddress("0:" + string(make([]byte, 64)))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	assert.True(t, ZeroAddress.IsZero())
	assert.False(t, a.IsZero())
	assert.Len(t, a.Short(), 2+6+2+4)
}

func TestParseCoins(t *testing.T) {
	tests := []struct {
		in   string
		want Coins
	}{
		{"0", 0},
		{"1", NanoPerCoin},
		{"0.05", 50_000_000},
		{".5", 500_000_000},
		{"10.5", 10_500_000_000},
		{"1.000000001", 1_000_000_001},
		{"-0.01", -10_000_000},
		{" 2 ", 2 * NanoPerCoin},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCoins(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "abc", "1.0000000001", "1.2.3", "1.x"} {
		_, err := ParseCoins(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestCoinsString(t *testing.T) {
	assert.Equal(t, "0", Coins(0).String())
	assert.Equal(t, "0.05", MustParseCoins("0.05").String())
	assert.Equal(t, "10.5", MustParseCoins("10.5").String())
	assert.Equal(t, "-1.25", MustParseCoins("-1.25").String())

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64Range(-1<<50, 1<<50).Draw(t, "nano")
		c, err := ParseCoins(Coins(n).String())
		if err != nil {
			t.Fatalf("parse %q: %v", Coins(n).String(), err)
		}
		if c != Coins(n) {
			t.Fatalf("round trip %d -> %s -> %d", n, Coins(n), c)
		}
	})
}

func TestBalance(t *testing.T) {
	b := NewBalance(MustParseCoins("1"))
	b.Credit(MustParseCoins("0.5"))
	assert.Equal(t, MustParseCoins("1.5"), b.Load())

	require.NoError(t, b.Debit(MustParseCoins("1.5")))
	assert.Equal(t, Coins(0), b.Load())

	err := b.Debit(1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, Coins(0), b.Load())
}

func TestFeeSink(t *testing.T) {
	var s FeeSink
	s.Collect(5)
	s.Collect(-3)
	s.Collect(7)
	assert.Equal(t, Coins(12), s.Total())
	s.Reset(1)
	assert.Equal(t, Coins(1), s.Total())
}

func TestFeeScheduleValidate(t *testing.T) {
	require.NoError(t, DefaultFees().Validate())

	f := DefaultFees()
	f.ForwardFee = -1
	assert.ErrorIs(t, f.Validate(), ErrInvalidFees)

	f = DefaultFees()
	f.ProcessingFee = 0
	assert.ErrorIs(t, f.Validate(), ErrInvalidFees)

	f = DefaultFees()
	f.RegisterValue = f.ForwardFee
	assert.ErrorIs(t, f.Validate(), ErrInvalidFees)
}

func TestEstimateAddTrack(t *testing.T) {
	f := DefaultFees()
	without := f.EstimateAddTrack(false)
	with := f.EstimateAddTrack(true)
	assert.Greater(t, with, without)
	assert.Greater(t, without, f.ChildReserve+f.ServiceFee)
}
