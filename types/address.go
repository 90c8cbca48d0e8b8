package types

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AztecAddress identifies an account or contract on L2. It is a field
// element.
type AztecAddress struct {
	Fr
}

// ZeroAztecAddress is the address used when no sender is set.
var ZeroAztecAddress = AztecAddress{}

// AztecAddressFromHex parses an address from its hex form.
func AztecAddressFromHex(s string) (AztecAddress, error) {
	f, err := FrFromHex(s)
	if err != nil {
		return AztecAddress{}, fmt.Errorf("invalid aztec address: %w", err)
	}
	return AztecAddress{f}, nil
}

// EthAddress is an L1 address, used for portal contracts and L2 to L1
// message recipients.
type EthAddress = common.Address

// EthAddressToFr returns the address as a field element (big endian value).
// A 20 byte value always fits in the field.
func EthAddressToFr(a EthAddress) Fr {
	return FrReduce(new(big.Int).SetBytes(a.Bytes()))
}

// Point is a public key on a curve embedded in the BN254 scalar field.
type Point struct {
	X Fr `json:"x" cbor:"0,keyasint"`
	Y Fr `json:"y" cbor:"1,keyasint"`
}

// IsZero reports whether both coordinates are zero.
func (p Point) IsZero() bool {
	return p.X.IsZero() && p.Y.IsZero()
}

// String returns the point as "(x, y)".
func (p Point) String() string {
	return fmt.Sprintf("(%s, %s)", p.X, p.Y)
}

// TxHash identifies a transaction.
type TxHash struct {
	Fr
}

// TxHashFromHex parses a transaction hash from its hex form.
func TxHashFromHex(s string) (TxHash, error) {
	f, err := FrFromHex(s)
	if err != nil {
		return TxHash{}, fmt.Errorf("invalid tx hash: %w", err)
	}
	return TxHash{f}, nil
}

// Selector identifies a contract function, the first FunctionSelectorNumBytes
// bytes of the keccak256 of its signature.
type Selector [FunctionSelectorNumBytes]byte

// Fr returns the selector as a field element.
func (s Selector) Fr() Fr {
	return FrReduce(new(big.Int).SetBytes(s[:]))
}

// String returns the hex representation of the selector.
func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Selector) UnmarshalText(data []byte) error {
	b, err := HexStringToHexBytes(string(data))
	if err != nil {
		return err
	}
	if len(b) != FunctionSelectorNumBytes {
		return fmt.Errorf("invalid selector length %d", len(b))
	}
	copy(s[:], b)
	return nil
}
