package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// TemplateID names the code an actor runs. Two actors with the same template
// and the same initial parameters share one address.
type TemplateID string

// StateInit is everything needed to instantiate an actor at its derived
// address: the template and its canonical initial parameters.
type StateInit struct {
	Template TemplateID
	Params   []byte
}

// Address returns the address this StateInit deploys to.
func (s StateInit) Address() Address {
	return Derive(s.Template, s.Params)
}

// Derive maps a template and its initial parameters to an address.
// The result depends only on its inputs.
func Derive(template TemplateID, params []byte) Address {
	buf := make([]byte, 0, len(template)+len(params)+2*binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(len(template)))
	buf = append(buf, template...)
	buf = binary.AppendUvarint(buf, uint64(len(params)))
	buf = append(buf, params...)
	return Address(blake2b.Sum256(buf))
}

// Field tags used by the canonical parameter encoding.
const (
	tagString  byte = 0x01
	tagAddress byte = 0x02
	tagNone    byte = 0x03
)

// ErrMalformedParams is returned when decoding parameters that were not
// produced by Params.
var ErrMalformedParams = errors.New("malformed init params")

// Params builds a canonical, length-prefixed encoding of initial parameters.
// Fields are positional: readers must consume them in the order written.
type Params struct {
	buf []byte
}

// NewParams starts an empty parameter list.
func NewParams() *Params {
	return &Params{}
}

// String appends a string field.
func (p *Params) String(s string) *Params {
	p.buf = append(p.buf, tagString)
	p.buf = binary.AppendUvarint(p.buf, uint64(len(s)))
	p.buf = append(p.buf, s...)
	return p
}

// Address appends an address field.
func (p *Params) Address(a Address) *Params {
	p.buf = append(p.buf, tagAddress)
	p.buf = append(p.buf, a[:]...)
	return p
}

// OptAddress appends an optional address field; nil encodes as absent.
func (p *Params) OptAddress(a *Address) *Params {
	if a == nil {
		p.buf = append(p.buf, tagNone)
		return p
	}
	return p.Address(*a)
}

// Bytes returns the encoded parameters.
func (p *Params) Bytes() []byte {
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// ParamsReader decodes parameters written by Params.
type ParamsReader struct {
	buf []byte
	off int
}

// ReadParams starts reading encoded parameters.
func ReadParams(b []byte) *ParamsReader {
	return &ParamsReader{buf: b}
}

func (r *ParamsReader) tag() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end at offset %d", ErrMalformedParams, r.off)
	}
	t := r.buf[r.off]
	r.off++
	return t, nil
}

// String reads a string field.
func (r *ParamsReader) String() (string, error) {
	t, err := r.tag()
	if err != nil {
		return "", err
	}
	if t != tagString {
		return "", fmt.Errorf("%w: want string, got tag 0x%02x", ErrMalformedParams, t)
	}
	n, size := binary.Uvarint(r.buf[r.off:])
	if size <= 0 || uint64(len(r.buf)-r.off-size) < n {
		return "", fmt.Errorf("%w: bad string length", ErrMalformedParams)
	}
	r.off += size
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// Address reads an address field.
func (r *ParamsReader) Address() (Address, error) {
	var a Address
	t, err := r.tag()
	if err != nil {
		return a, err
	}
	if t != tagAddress {
		return a, fmt.Errorf("%w: want address, got tag 0x%02x", ErrMalformedParams, t)
	}
	if len(r.buf)-r.off < AddressSize {
		return a, fmt.Errorf("%w: short address", ErrMalformedParams)
	}
	copy(a[:], r.buf[r.off:r.off+AddressSize])
	r.off += AddressSize
	return a, nil
}

// OptAddress reads an optional address field.
func (r *ParamsReader) OptAddress() (*Address, error) {
	if r.off < len(r.buf) && r.buf[r.off] == tagNone {
		r.off++
		return nil, nil
	}
	a, err := r.Address()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Done returns an error if unread bytes remain.
func (r *ParamsReader) Done() error {
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedParams, len(r.buf)-r.off)
	}
	return nil
}
