package abi

import (
	"bytes"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/types"
)

// AcirHash is the digest of the bytecode of a function.
func AcirHash(bytecode []byte) types.Fr {
	return types.FrReduce(new(big.Int).SetBytes(crypto.Keccak256(bytecode)))
}

// FunctionLeaves returns the function tree leaves of a contract: one per
// function that is neither a constructor nor unconstrained, ordered by
// selector.
func FunctionLeaves(h *domain.Hasher, c *ContractAbi) ([]types.Fr, error) {
	fns := make([]*Function, 0, len(c.Functions))
	for i := range c.Functions {
		fn := &c.Functions[i]
		if fn.IsConstructor || fn.FunctionType == Unconstrained {
			continue
		}
		fns = append(fns, fn)
	}
	slices.SortFunc(fns, func(a, b *Function) int {
		sa, sb := a.Selector(), b.Selector()
		return bytes.Compare(sa[:], sb[:])
	})
	leaves := make([]types.Fr, 0, len(fns))
	for _, fn := range fns {
		vk, err := h.VKHash(fn.VerificationKey)
		if err != nil {
			return nil, err
		}
		leaf, err := h.FunctionLeaf(fn.Selector(), fn.IsPrivate(), vk, AcirHash(fn.Bytecode))
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// FunctionTreeRoot returns the root of the function tree of a contract.
func FunctionTreeRoot(h *domain.Hasher, c *ContractAbi) (types.Fr, error) {
	leaves, err := FunctionLeaves(h, c)
	if err != nil {
		return types.Fr{}, err
	}
	return merkle.ComputeRoot(h, types.FunctionTreeHeight, leaves)
}
