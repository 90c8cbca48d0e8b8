package types

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
)

// FieldBytes is the length of the canonical encoding of a field element.
const FieldBytes = fr.Bytes

var (
	// ErrNonCanonicalField is returned when decoding a value that is not
	// strictly lower than the field modulus.
	ErrNonCanonicalField = fmt.Errorf("non canonical field element")
	// ErrInvalidFieldLength is returned when the encoding is not 32 bytes.
	ErrInvalidFieldLength = fmt.Errorf("invalid field element length")
)

// Fr is an element of the BN254 scalar field, the field every protocol value
// lives in. The zero value is the field zero. Fr is comparable and can be
// used as a map key.
type Fr struct {
	e fr.Element
}

// Modulus returns a copy of the field modulus.
func Modulus() *big.Int {
	return fr.Modulus()
}

// NewFr returns the field element for a small integer.
func NewFr(v uint64) Fr {
	var f Fr
	f.e.SetUint64(v)
	return f
}

// FrFromBool encodes a boolean as 0 or 1.
func FrFromBool(b bool) Fr {
	if b {
		return NewFr(1)
	}
	return Fr{}
}

// FrFromBig converts a non negative integer lower than the modulus.
func FrFromBig(b *big.Int) (Fr, error) {
	if b == nil || b.Sign() < 0 || b.Cmp(fr.Modulus()) >= 0 {
		return Fr{}, ErrNonCanonicalField
	}
	var f Fr
	f.e.SetBigInt(b)
	return f, nil
}

// FrReduce converts any integer into the field, reducing it modulo the
// field order. Use it only for values that are not protocol encodings (such
// as digests).
func FrReduce(b *big.Int) Fr {
	var f Fr
	f.e.SetBigInt(b)
	return f
}

// FrFromBytes decodes the canonical 32 byte big endian encoding.
func FrFromBytes(b []byte) (Fr, error) {
	if len(b) != FieldBytes {
		return Fr{}, fmt.Errorf("%w: got %d bytes", ErrInvalidFieldLength, len(b))
	}
	return FrFromBig(new(big.Int).SetBytes(b))
}

// FrFromHex decodes a hex string with an optional 0x prefix. Short strings
// are left padded.
func FrFromHex(s string) (Fr, error) {
	s = trimHexPrefix(s)
	if len(s) > 2*FieldBytes {
		return Fr{}, fmt.Errorf("%w: hex string too long", ErrInvalidFieldLength)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fr{}, fmt.Errorf("invalid field hex %q: %w", s, err)
	}
	return FrFromBytes(HexBytes(raw).LeftPad(FieldBytes))
}

// MustFrFromHex is FrFromHex for constants, it panics on error.
func MustFrFromHex(s string) Fr {
	f, err := FrFromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Bytes returns the canonical 32 byte big endian encoding.
func (f Fr) Bytes() [FieldBytes]byte {
	return f.e.Bytes()
}

// BigInt returns the integer representative of f.
func (f Fr) BigInt() *big.Int {
	return f.e.BigInt(new(big.Int))
}

// Uint64 returns f as uint64 if it fits.
func (f Fr) Uint64() (uint64, bool) {
	b := f.BigInt()
	if !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

// IsZero reports whether f is the field zero.
func (f Fr) IsZero() bool {
	return f.e.IsZero()
}

// Equal reports whether f and o are the same element.
func (f Fr) Equal(o Fr) bool {
	return f.e.Equal(&o.e)
}

// Add returns f + o.
func (f Fr) Add(o Fr) Fr {
	var r Fr
	r.e.Add(&f.e, &o.e)
	return r
}

// Sub returns f - o.
func (f Fr) Sub(o Fr) Fr {
	var r Fr
	r.e.Sub(&f.e, &o.e)
	return r
}

// Element returns the underlying gnark-crypto element.
func (f Fr) Element() fr.Element {
	return f.e
}

// FrFromElement wraps a gnark-crypto element.
func FrFromElement(e fr.Element) Fr {
	return Fr{e: e}
}

// String returns the 0x prefixed hex of the canonical encoding.
func (f Fr) String() string {
	b := f.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f Fr) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fr) UnmarshalText(data []byte) error {
	v, err := FrFromHex(string(data))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MarshalCBOR encodes f as a CBOR byte string of its canonical encoding.
func (f Fr) MarshalCBOR() ([]byte, error) {
	b := f.Bytes()
	return cbor.Marshal(b[:])
}

// UnmarshalCBOR decodes a CBOR byte string, rejecting non canonical values.
func (f *Fr) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	v, err := FrFromBytes(b)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// BigInts converts a slice of field elements into integers.
func BigInts(fs []Fr) []*big.Int {
	out := make([]*big.Int, len(fs))
	for i, f := range fs {
		out[i] = f.BigInt()
	}
	return out
}

// PadFields returns fs right padded with zeros to n elements. It returns an
// error if fs is longer than n.
func PadFields(fs []Fr, n int) ([]Fr, error) {
	if len(fs) > n {
		return nil, fmt.Errorf("too many fields: %d > %d", len(fs), n)
	}
	out := make([]Fr, n)
	copy(out, fs)
	return out, nil
}
