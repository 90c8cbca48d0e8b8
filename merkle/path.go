package merkle

import (
	"fmt"

	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
)

// ComputeRootFromPath folds a sibling path from leaf to root.
func ComputeRootFromPath(hasher *domain.Hasher, leaf types.Fr, index uint64, path []types.Fr) (types.Fr, error) {
	node := leaf
	for _, sib := range path {
		left, right := node, sib
		if index&1 == 1 {
			left, right = sib, node
		}
		var err error
		if node, err = hasher.HashPair(left, right); err != nil {
			return types.Fr{}, err
		}
		index >>= 1
	}
	return node, nil
}

// VerifySiblingPath reports whether leaf sits at index under root.
func VerifySiblingPath(hasher *domain.Hasher, leaf types.Fr, index uint64, path []types.Fr, root types.Fr) (bool, error) {
	got, err := ComputeRootFromPath(hasher, leaf, index, path)
	if err != nil {
		return false, err
	}
	return got.Equal(root), nil
}

// ComputeRoot returns the root of a tree of the given height whose first
// leaves are the given ones and the rest are zero. It is used for small
// trees computed on the fly, such as contract function trees.
func ComputeRoot(hasher *domain.Hasher, height int, leaves []types.Fr) (types.Fr, error) {
	if len(leaves) > 1<<height {
		return types.Fr{}, fmt.Errorf("%w: %d leaves for a tree of height %d", ErrTreeFull, len(leaves), height)
	}
	zeros, err := zeroHashes(hasher, height)
	if err != nil {
		return types.Fr{}, err
	}
	level := append([]types.Fr(nil), leaves...)
	for l := 0; l < height; l++ {
		if len(level)%2 == 1 {
			level = append(level, zeros[l])
		}
		if len(level) == 0 {
			return zeros[height], nil
		}
		next := make([]types.Fr, len(level)/2)
		for i := range next {
			if next[i], err = hasher.HashPair(level[2*i], level[2*i+1]); err != nil {
				return types.Fr{}, err
			}
		}
		level = next
	}
	if len(level) == 0 {
		return zeros[height], nil
	}
	return level[0], nil
}
