package merkle

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func newTestForest(c *qt.C) *Forest {
	f, err := NewForest(metadb.NewTest(c), nil)
	c.Assert(err, qt.IsNil)
	return f
}

func testGlobals(number uint64) GlobalVariables {
	return GlobalVariables{
		ChainID:     types.NewFr(31337),
		Version:     types.NewFr(1),
		BlockNumber: number,
		Timestamp:   1700000000 + number,
	}
}

func TestForestGenesis(t *testing.T) {
	c := qt.New(t)
	f := newTestForest(c)
	c.Assert(f.BlockNumber(), qt.Equals, uint64(0))

	roots, err := f.Roots()
	c.Assert(err, qt.IsNil)
	for id, root := range map[TreeID]types.Fr{
		TreePrivateData:    roots.PrivateData,
		TreeNullifier:      roots.Nullifier,
		TreeContract:       roots.Contract,
		TreeL1ToL2Messages: roots.L1ToL2Messages,
		TreePublicData:     roots.PublicData,
	} {
		ok, err := f.IsHistoricRoot(id, root)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue, qt.Commentf("tree %s", id))
	}

	// an empty public data tree has a zero root, still a valid historic root
	// once blocks that leave public state untouched are applied
	_, err = f.ApplyBlock(&BlockUpdate{Globals: testGlobals(1), Commitments: leaves(1, 2)})
	c.Assert(err, qt.IsNil)
	ok, err := f.IsHistoricRoot(TreePublicData, roots.PublicData)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	ok, err = f.IsHistoricRoot(TreePublicData, types.NewFr(1))
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	_, err = f.IsHistoricRoot(TreeVK, types.Fr{})
	c.Assert(err, qt.ErrorIs, ErrUnknownTree)
	_, err = f.Root(TreeID(99))
	c.Assert(err, qt.ErrorIs, ErrUnknownTree)
}

func TestForestApplyBlock(t *testing.T) {
	c := qt.New(t)
	f := newTestForest(c)
	before, err := f.Roots()
	c.Assert(err, qt.IsNil)

	contract := types.AztecAddress{Fr: types.NewFr(0xc0ffee)}
	slot := types.NewFr(77)
	update := &BlockUpdate{
		Globals:        testGlobals(1),
		Commitments:    leaves(100, 4),
		Nullifiers:     leaves(200, 3),
		Contracts:      []ContractData{{Address: contract, Portal: common.HexToAddress("0x01"), FunctionTreeRoot: types.NewFr(9)}},
		L1ToL2Messages: leaves(300, 1),
		PublicWrites:   []PublicWrite{{Index: slot, Value: types.NewFr(12)}},
	}
	res, err := f.ApplyBlock(update)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Number, qt.Equals, uint64(1))
	c.Assert(f.BlockNumber(), qt.Equals, uint64(1))

	after, err := f.Roots()
	c.Assert(err, qt.IsNil)
	c.Assert(*after, qt.DeepEquals, res.Roots)
	c.Assert(after.PrivateData.Equal(before.PrivateData), qt.IsFalse)
	c.Assert(after.PublicData.Equal(before.PublicData), qt.IsFalse)

	// the private data tree holds one full padded subtree
	size, err := f.Size(TreePrivateData)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(1<<types.PrivateDataSubtreeHeight))
	want, err := ComputeRoot(f.Hasher(), types.PrivateDataTreeHeight, update.Commitments)
	c.Assert(err, qt.IsNil)
	c.Assert(after.PrivateData, qt.DeepEquals, want)

	path, err := f.SiblingPath(TreePrivateData, 2)
	c.Assert(err, qt.IsNil)
	ok, err := VerifySiblingPath(f.Hasher(), update.Commitments[2], 2, path, after.PrivateData)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	registered, err := f.IsNullifierRegistered(update.Nullifiers[1])
	c.Assert(err, qt.IsNil)
	c.Assert(registered, qt.IsTrue)
	registered, err = f.IsNullifierRegistered(types.Fr{})
	c.Assert(err, qt.IsNil)
	c.Assert(registered, qt.IsFalse)

	deployed, err := f.IsContractDeployed(contract)
	c.Assert(err, qt.IsNil)
	c.Assert(deployed, qt.IsTrue)
	deployed, err = f.IsContractDeployed(types.AztecAddress{Fr: types.NewFr(1)})
	c.Assert(err, qt.IsNil)
	c.Assert(deployed, qt.IsFalse)

	value, err := f.StorageAt(slot)
	c.Assert(err, qt.IsNil)
	c.Assert(value, qt.DeepEquals, types.NewFr(12))

	for id, root := range map[TreeID]types.Fr{
		TreePrivateData: before.PrivateData,
		TreeNullifier:   after.Nullifier,
		TreePublicData:  after.PublicData,
	} {
		ok, err := f.IsHistoricRoot(id, root)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)
	}

	hash, err := BlockHash(f.Hasher(), update.Globals, &res.Roots)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Hash, qt.DeepEquals, hash)
	bpath, err := f.SiblingPath(TreeHistoricBlocks, 0)
	c.Assert(err, qt.IsNil)
	ok, err = VerifySiblingPath(f.Hasher(), hash, 0, bpath, after.HistoricBlocks)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}

func TestForestApplyBlockIsAtomic(t *testing.T) {
	c := qt.New(t)
	f := newTestForest(c)
	_, err := f.ApplyBlock(&BlockUpdate{Globals: testGlobals(1), Nullifiers: leaves(1, 2)})
	c.Assert(err, qt.IsNil)
	before, err := f.Roots()
	c.Assert(err, qt.IsNil)

	slot := types.NewFr(5)
	_, err = f.ApplyBlock(&BlockUpdate{
		Globals:      testGlobals(2),
		Commitments:  leaves(50, 2),
		Nullifiers:   leaves(2, 1),
		PublicWrites: []PublicWrite{{Index: slot, Value: types.NewFr(1)}},
	})
	c.Assert(err, qt.ErrorIs, ErrDuplicateNullifier)

	after, err := f.Roots()
	c.Assert(err, qt.IsNil)
	c.Assert(*after, qt.DeepEquals, *before)
	c.Assert(f.BlockNumber(), qt.Equals, uint64(1))
	value, err := f.StorageAt(slot)
	c.Assert(err, qt.IsNil)
	c.Assert(value.IsZero(), qt.IsTrue)

	_, err = f.ApplyBlock(&BlockUpdate{Globals: testGlobals(3)})
	c.Assert(err, qt.ErrorIs, ErrInvalidBlock)
	_, err = f.ApplyBlock(&BlockUpdate{Globals: testGlobals(2), Commitments: leaves(0, 33)})
	c.Assert(err, qt.ErrorIs, ErrInvalidBlock)
}

func TestForestReopen(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	f, err := NewForest(database, domain.Default)
	c.Assert(err, qt.IsNil)
	_, err = f.ApplyBlock(&BlockUpdate{Globals: testGlobals(1), Commitments: leaves(1, 1)})
	c.Assert(err, qt.IsNil)
	roots, err := f.Roots()
	c.Assert(err, qt.IsNil)

	reopened, err := NewForest(database, domain.Default)
	c.Assert(err, qt.IsNil)
	c.Assert(reopened.BlockNumber(), qt.Equals, uint64(1))
	got, err := reopened.Roots()
	c.Assert(err, qt.IsNil)
	c.Assert(*got, qt.DeepEquals, *roots)
}

func TestForestDirectUpdates(t *testing.T) {
	c := qt.New(t)
	f := newTestForest(c)

	root, err := f.InsertSubtree(TreeL1ToL2Messages, leaves(1, 1<<types.L1ToL2MsgSubtreeHeight))
	c.Assert(err, qt.IsNil)
	ok, err := f.IsHistoricRoot(TreeL1ToL2Messages, root)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	_, err = f.InsertSubtree(TreePublicData, leaves(1, 1))
	c.Assert(err, qt.ErrorIs, ErrUnknownTree)

	pubRoot, err := f.UpdatePublicData(types.NewFr(3), types.NewFr(4))
	c.Assert(err, qt.IsNil)
	ok, err = f.IsHistoricRoot(TreePublicData, pubRoot)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	proof, err := f.PublicDataProof(types.NewFr(3))
	c.Assert(err, qt.IsNil)
	ok, err = VerifyPublicDataProof(pubRoot, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	i0, err := f.RegisterVK(types.NewFr(11))
	c.Assert(err, qt.IsNil)
	i1, err := f.RegisterVK(types.NewFr(12))
	c.Assert(err, qt.IsNil)
	again, err := f.RegisterVK(types.NewFr(11))
	c.Assert(err, qt.IsNil)
	c.Assert([]uint64{i0, i1, again}, qt.DeepEquals, []uint64{0, 1, 0})
}

func TestForestView(t *testing.T) {
	c := qt.New(t)
	f := newTestForest(c)
	err := f.View(func(r Reader) error {
		roots, err := r.Roots()
		c.Assert(err, qt.IsNil)
		root, err := r.Root(TreeContract)
		c.Assert(err, qt.IsNil)
		c.Assert(root, qt.DeepEquals, roots.Contract)
		c.Assert(r.BlockNumber(), qt.Equals, uint64(0))
		return nil
	})
	c.Assert(err, qt.IsNil)
}
