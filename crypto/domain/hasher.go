// Package domain implements the domain separated hashing of the protocol.
// Every artifact is hashed with its GeneratorIndex as the leading input, so
// two artifacts of different kinds never collide even when their raw inputs
// are equal. Storage slots and merkle nodes have prefixes of their own. The
// hash primitive is pluggable; Poseidon is the default.
package domain

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/aztec-rpc/crypto/hash/poseidon"
	"github.com/vocdoni/aztec-rpc/types"
)

// ErrMalformedHashInput is returned for empty inputs, unknown tags or inputs
// that do not match the fixed layout of a tag.
var ErrMalformedHashInput = fmt.Errorf("malformed hash input")

// Primitive is a hash function over field elements.
type Primitive interface {
	Hash(inputs []*big.Int) (*big.Int, error)
}

// Hasher computes tagged hashes with a Primitive.
type Hasher struct {
	primitive Primitive
}

// Default is the Poseidon backed hasher.
var Default = New(poseidon.Poseidon{})

// New returns a Hasher over the given primitive.
func New(p Primitive) *Hasher {
	return &Hasher{primitive: p}
}

// Hash returns H(tag, inputs...).
func (h *Hasher) Hash(tag GeneratorIndex, inputs ...types.Fr) (types.Fr, error) {
	if !tag.Valid() {
		return types.Fr{}, fmt.Errorf("%w: unknown tag %d", ErrMalformedHashInput, uint32(tag))
	}
	if len(inputs) == 0 {
		return types.Fr{}, fmt.Errorf("%w: %s without inputs", ErrMalformedHashInput, tag)
	}
	if n := tag.Arity(); n != 0 && len(inputs) != n {
		return types.Fr{}, fmt.Errorf("%w: %s expects %d inputs, got %d", ErrMalformedHashInput, tag, n, len(inputs))
	}
	return h.raw(new(big.Int).SetUint64(uint64(tag)), inputs)
}

// SlotHash derives a storage slot. Storage slot tags live in their own
// namespace, prefixed with a zero which is never a GeneratorIndex value.
func (h *Hasher) SlotHash(tag StorageSlotGeneratorIndex, inputs ...types.Fr) (types.Fr, error) {
	if len(inputs) == 0 {
		return types.Fr{}, fmt.Errorf("%w: storage slot without inputs", ErrMalformedHashInput)
	}
	return h.raw(new(big.Int), append([]types.Fr{types.NewFr(uint64(tag))}, inputs...))
}

// NodePrefix leads the inputs of every merkle node. It is above the range
// of GeneratorIndex and is not zero, the storage slot prefix.
var NodePrefix = new(big.Int).Lsh(big.NewInt(1), 32)

// HashPair compresses two merkle nodes as H(NodePrefix, left, right).
func (h *Hasher) HashPair(left, right types.Fr) (types.Fr, error) {
	return h.raw(NodePrefix, []types.Fr{left, right})
}

func (h *Hasher) raw(prefix *big.Int, inputs []types.Fr) (types.Fr, error) {
	in := make([]*big.Int, 0, len(inputs)+1)
	in = append(in, prefix)
	in = append(in, types.BigInts(inputs)...)
	out, err := h.primitive.Hash(in)
	if err != nil {
		return types.Fr{}, fmt.Errorf("hash primitive: %w", err)
	}
	digest, err := types.FrFromBig(out)
	if err != nil {
		return types.Fr{}, fmt.Errorf("hash primitive output: %w", err)
	}
	return digest, nil
}
