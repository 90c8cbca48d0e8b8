package merkle

import (
	"errors"
	"fmt"

	"github.com/vocdoni/aztec-rpc/types"
	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// PublicDataHashFn is the hash function of the public data tree.
var PublicDataHashFn = arbo.HashFunctionPoseidon

// PublicDataTree is the sparse tree of public contract storage, keyed by
// public leaf index. Absent keys read as zero.
type PublicDataTree struct {
	tree   *arbo.Tree
	root   db.Database
	prefix []byte
}

// PublicDataProof proves the value stored at a leaf index.
type PublicDataProof struct {
	Index    types.Fr       `json:"index"`
	Value    types.Fr       `json:"value"`
	Exists   bool           `json:"exists"`
	Siblings types.HexBytes `json:"siblings"`
}

func newPublicDataTree(database db.Database, prefix []byte) (*PublicDataTree, error) {
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(database, prefix),
		MaxLevels:    types.PublicDataTreeHeight,
		HashFunction: PublicDataHashFn,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open public data tree: %w", err)
	}
	return &PublicDataTree{tree: tree, root: database, prefix: prefix}, nil
}

func publicDataKey(f types.Fr) []byte {
	return arbo.BigIntToBytes(PublicDataHashFn.Len(), f.BigInt())
}

func fromArbo(b []byte) (types.Fr, error) {
	return types.FrFromBig(arbo.BytesToBigInt(b))
}

// Root returns the current root.
func (p *PublicDataTree) Root() (types.Fr, error) {
	root, err := p.tree.Root()
	if err != nil {
		return types.Fr{}, err
	}
	return fromArbo(root)
}

// Get returns the value at index, zero if it was never written.
func (p *PublicDataTree) Get(index types.Fr) (types.Fr, error) {
	_, v, err := p.tree.Get(publicDataKey(index))
	if errors.Is(err, arbo.ErrKeyNotFound) {
		return types.Fr{}, nil
	}
	if err != nil {
		return types.Fr{}, err
	}
	return fromArbo(v)
}

// Update writes value at index and commits it.
func (p *PublicDataTree) Update(index, value types.Fr) (types.Fr, error) {
	wTx := p.root.WriteTx()
	defer wTx.Discard()
	root, err := p.updateWithTx(wTx, index, value)
	if err != nil {
		return types.Fr{}, err
	}
	if err := wTx.Commit(); err != nil {
		return types.Fr{}, err
	}
	return root, nil
}

// updateWithTx stages an update in a transaction of the underlying database
// and returns the resulting root.
func (p *PublicDataTree) updateWithTx(wTx db.WriteTx, index, value types.Fr) (types.Fr, error) {
	pTx := prefixeddb.NewPrefixedWriteTx(wTx, p.prefix)
	k := publicDataKey(index)
	v := arbo.BigIntToBytes(PublicDataHashFn.Len(), value.BigInt())
	_, _, err := p.tree.GetWithTx(pTx, k)
	switch {
	case errors.Is(err, arbo.ErrKeyNotFound):
		err = p.tree.AddWithTx(pTx, k, v)
	case err == nil:
		err = p.tree.UpdateWithTx(pTx, k, v)
	}
	if err != nil {
		return types.Fr{}, fmt.Errorf("could not write public data %s: %w", index, err)
	}
	root, err := p.tree.RootWithTx(pTx)
	if err != nil {
		return types.Fr{}, err
	}
	return fromArbo(root)
}

// Proof returns a proof for the value at index.
func (p *PublicDataTree) Proof(index types.Fr) (*PublicDataProof, error) {
	_, v, siblings, exists, err := p.tree.GenProof(publicDataKey(index))
	if err != nil {
		return nil, err
	}
	proof := &PublicDataProof{Index: index, Exists: exists, Siblings: siblings}
	if exists {
		if proof.Value, err = fromArbo(v); err != nil {
			return nil, err
		}
	}
	return proof, nil
}

// SiblingPath returns the PublicDataTreeHeight siblings of index ordered
// from the root down. The tree is sparse, so the path ends at the level of
// the leaf and the levels below it are zero. VerifyPublicDataPath checks it.
func (p *PublicDataTree) SiblingPath(index types.Fr) ([]types.Fr, error) {
	proof, err := p.Proof(index)
	if err != nil {
		return nil, err
	}
	unpacked, err := arbo.UnpackSiblings(PublicDataHashFn, proof.Siblings)
	if err != nil {
		return nil, err
	}
	path := make([]types.Fr, types.PublicDataTreeHeight)
	for i := 0; i < len(unpacked) && i < len(path); i++ {
		if path[i], err = fromArbo(unpacked[i]); err != nil {
			return nil, err
		}
	}
	return path, nil
}

// VerifyPublicDataProof checks an inclusion proof against root.
func VerifyPublicDataProof(root types.Fr, proof *PublicDataProof) (bool, error) {
	if proof == nil || !proof.Exists {
		return false, nil
	}
	return arbo.CheckProof(PublicDataHashFn,
		publicDataKey(proof.Index),
		arbo.BigIntToBytes(PublicDataHashFn.Len(), proof.Value.BigInt()),
		arbo.BigIntToBytes(PublicDataHashFn.Len(), root.BigInt()),
		proof.Siblings)
}

// VerifyPublicDataPath reports whether value is stored at index under root,
// given the path returned by SiblingPath.
func VerifyPublicDataPath(root, index, value types.Fr, path []types.Fr) (bool, error) {
	if len(path) != types.PublicDataTreeHeight {
		return false, fmt.Errorf("%w: public data path of %d levels", ErrIndexOutOfRange, len(path))
	}
	depth := len(path)
	for depth > 0 && path[depth-1].IsZero() {
		depth--
	}
	siblings := make([][]byte, depth)
	for i := range siblings {
		siblings[i] = arbo.BigIntToBytes(PublicDataHashFn.Len(), path[i].BigInt())
	}
	packed, err := arbo.PackSiblings(PublicDataHashFn, siblings)
	if err != nil {
		return false, err
	}
	return VerifyPublicDataProof(root, &PublicDataProof{Index: index, Value: value, Exists: true, Siblings: packed})
}
