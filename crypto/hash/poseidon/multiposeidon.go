// Package poseidon provides the Poseidon sponge used as the default hash
// primitive of the protocol, extended to any number of inputs.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// width is the maximum number of inputs the iden3 permutation accepts.
const width = 16

// ErrNoInputs is returned when hashing an empty input list.
var ErrNoInputs = fmt.Errorf("no inputs provided")

// MultiPoseidon hashes any number of inputs. Up to 16 inputs are hashed
// directly; longer inputs are split in chunks of 16, each chunk is hashed and
// the chunk digests are hashed again, level by level, until one digest is
// left.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	level := inputs
	for {
		if len(level) <= width {
			return poseidon.Hash(level)
		}
		next := make([]*big.Int, 0, (len(level)+width-1)/width)
		for start := 0; start < len(level); start += width {
			digest, err := poseidon.Hash(level[start:min(start+width, len(level))])
			if err != nil {
				return nil, err
			}
			next = append(next, digest)
		}
		level = next
	}
}

// Poseidon is a stateless hash primitive backed by MultiPoseidon.
type Poseidon struct{}

// Hash implements the primitive interface used by the domain hasher.
func (Poseidon) Hash(inputs []*big.Int) (*big.Int, error) {
	return MultiPoseidon(inputs...)
}

// Name identifies the primitive in logs and configuration.
func (Poseidon) Name() string {
	return "poseidon"
}
