package merkle

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestPublicDataTree(t *testing.T) {
	c := qt.New(t)
	tree, err := newPublicDataTree(metadb.NewTest(t), []byte("pub/"))
	c.Assert(err, qt.IsNil)

	emptyRoot, err := tree.Root()
	c.Assert(err, qt.IsNil)

	index := types.NewFr(42)
	v, err := tree.Get(index)
	c.Assert(err, qt.IsNil)
	c.Assert(v.IsZero(), qt.IsTrue)

	root, err := tree.Update(index, types.NewFr(5))
	c.Assert(err, qt.IsNil)
	c.Assert(root.Equal(emptyRoot), qt.IsFalse)
	v, err = tree.Get(index)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, types.NewFr(5))

	// overwrite
	root, err = tree.Update(index, types.NewFr(6))
	c.Assert(err, qt.IsNil)
	v, err = tree.Get(index)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, types.NewFr(6))

	_, err = tree.Update(types.NewFr(43), types.NewFr(1))
	c.Assert(err, qt.IsNil)
	root, err = tree.Root()
	c.Assert(err, qt.IsNil)

	proof, err := tree.Proof(index)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Exists, qt.IsTrue)
	c.Assert(proof.Value, qt.DeepEquals, types.NewFr(6))
	ok, err := VerifyPublicDataProof(root, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	ok, err = VerifyPublicDataProof(emptyRoot, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	absent, err := tree.Proof(types.NewFr(1000))
	c.Assert(err, qt.IsNil)
	c.Assert(absent.Exists, qt.IsFalse)

	path, err := tree.SiblingPath(index)
	c.Assert(err, qt.IsNil)
	c.Assert(path, qt.HasLen, types.PublicDataTreeHeight)
	ok, err = VerifyPublicDataPath(root, index, types.NewFr(6), path)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	ok, err = VerifyPublicDataPath(root, index, types.NewFr(5), path)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	ok, err = VerifyPublicDataPath(root, types.NewFr(43), types.NewFr(6), path)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	_, err = VerifyPublicDataPath(root, index, types.NewFr(6), path[:10])
	c.Assert(err, qt.ErrorIs, ErrIndexOutOfRange)
}

func TestPublicDataPaths(t *testing.T) {
	c := qt.New(t)
	tree, err := newPublicDataTree(metadb.NewTest(t), []byte("pub/"))
	c.Assert(err, qt.IsNil)

	// a single leaf sits at the root, with no siblings
	_, err = tree.Update(types.NewFr(1), types.NewFr(10))
	c.Assert(err, qt.IsNil)
	root, err := tree.Root()
	c.Assert(err, qt.IsNil)
	path, err := tree.SiblingPath(types.NewFr(1))
	c.Assert(err, qt.IsNil)
	ok, err := VerifyPublicDataPath(root, types.NewFr(1), types.NewFr(10), path)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	written := map[uint64]uint64{1: 10}
	for i := uint64(2); i < 40; i++ {
		_, err := tree.Update(types.NewFr(i*7919), types.NewFr(i))
		c.Assert(err, qt.IsNil)
		written[i*7919] = i
	}
	root, err = tree.Root()
	c.Assert(err, qt.IsNil)
	for index, value := range written {
		path, err := tree.SiblingPath(types.NewFr(index))
		c.Assert(err, qt.IsNil)
		ok, err := VerifyPublicDataPath(root, types.NewFr(index), types.NewFr(value), path)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue, qt.Commentf("index %d", index))
	}
}
