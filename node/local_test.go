package node

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/simulator"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var (
	testChainID = types.NewFr(31337)
	testVersion = types.NewFr(1)

	counterAddr = types.AztecAddress{Fr: types.NewFr(10)}
	tokenAddr   = types.AztecAddress{Fr: types.NewFr(30)}
	alice       = types.AztecAddress{Fr: types.NewFr(1)}
	bob         = types.AztecAddress{Fr: types.NewFr(2)}
)

type testNode struct {
	c         *qt.C
	forest    *merkle.Forest
	local     *Local
	sim       *simulator.Simulator
	contracts map[types.AztecAddress]*abi.ContractAbi
	nonce     uint64
}

func newTestNode(c *qt.C) *testNode {
	forest, err := merkle.NewForest(metadb.NewTest(c.TB), nil)
	c.Assert(err, qt.IsNil)
	n := &testNode{
		c:      c,
		forest: forest,
		local:  NewLocal(forest, LocalConfig{ChainID: testChainID, Version: testVersion}),
		contracts: map[types.AztecAddress]*abi.ContractAbi{
			counterAddr: simulator.CounterAbi(),
			tokenAddr:   simulator.PrivateTokenAbi(),
		},
	}
	n.sim = simulator.New(nil, n, forest, nil)
	return n
}

func (n *testNode) ContractAbi(_ context.Context, address types.AztecAddress) (*abi.ContractAbi, error) {
	def, ok := n.contracts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", simulator.ErrContractNotFound, address)
	}
	return def, nil
}

// tx assembles a call of origin against the current forest.
func (n *testNode) tx(origin, contract types.AztecAddress, name string, values ...abi.Value) *tx.Tx {
	n.nonce++
	fn, err := n.contracts[contract].Function(name)
	n.c.Assert(err, qt.IsNil)
	args, err := abi.EncodeArgs(fn, values)
	n.c.Assert(err, qt.IsNil)
	call := tx.FunctionCall{
		Contract:     contract,
		FunctionData: tx.FunctionData{Selector: fn.Selector(), IsPrivate: fn.IsPrivate()},
		Args:         args,
	}
	req := &tx.TxRequest{
		Origin:       origin,
		FunctionData: call.FunctionData,
		Args:         args,
		Nonce:        types.NewFr(n.nonce),
		TxContext:    tx.TxContext{ChainID: testChainID, Version: testVersion},
	}
	roots, err := n.forest.Roots()
	n.c.Assert(err, qt.IsNil)
	a, err := tx.NewAssembly(nil, req, call, *roots)
	n.c.Assert(err, qt.IsNil)
	t, err := tx.Assemble(context.Background(), a, n.sim, n.forest)
	n.c.Assert(err, qt.IsNil)
	return t
}

func (n *testNode) increment(by uint64) *tx.Tx {
	return n.tx(alice, counterAddr, "increment", abi.NewInteger(by))
}

func (n *testNode) transfer(amount uint64, to types.AztecAddress) *tx.Tx {
	return n.tx(alice, tokenAddr, "transfer",
		abi.NewInteger(amount), abi.FieldOf(alice.Fr), abi.NewInteger(10),
		abi.FieldOf(types.NewFr(5)), abi.FieldOf(to.Fr))
}

func (n *testNode) receipt(t *tx.Tx) *TxReceipt {
	r, err := n.local.GetTxReceipt(context.Background(), t.Hash)
	n.c.Assert(err, qt.IsNil)
	return r
}

func counterIndex(c *qt.C) types.Fr {
	index, err := domain.Default.PublicLeafIndex(counterAddr, types.NewFr(1))
	c.Assert(err, qt.IsNil)
	return index
}

func TestMineBlock(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	inc := n.increment(5)
	mint := n.tx(alice, tokenAddr, "mint_batch", abi.FieldOf(alice.Fr), abi.NewInteger(3), abi.FieldOf(types.NewFr(1)))
	for _, sent := range []*tx.Tx{inc, mint} {
		hash, err := n.local.SendTx(ctx, sent)
		c.Assert(err, qt.IsNil)
		c.Assert(hash, qt.Equals, sent.Hash)
		c.Assert(n.receipt(sent).Status, qt.Equals, TxStatusPending)
	}

	block, err := n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.Number, qt.Equals, uint64(1))
	c.Assert(block.TxHashes, qt.DeepEquals, []types.TxHash{inc.Hash, mint.Hash})
	c.Assert(n.receipt(inc).Status, qt.Equals, TxStatusMined)
	c.Assert(n.receipt(mint).BlockNumber, qt.Equals, uint64(1))
	c.Assert(n.local.PendingTxs(), qt.Equals, 0)

	v, err := n.forest.StorageAt(counterIndex(c))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, types.NewFr(5))
	size, err := n.forest.Size(merkle.TreePrivateData)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(1<<types.PrivateDataSubtreeHeight))
	roots, err := n.forest.Roots()
	c.Assert(err, qt.IsNil)
	c.Assert(block.Roots, qt.DeepEquals, *roots)

	number, err := n.local.BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(number, qt.Equals, uint64(1))
	blocks, err := n.local.GetBlocks(ctx, 1, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(blocks, qt.HasLen, 1)
	blocks, err = n.local.GetBlocks(ctx, 2, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(blocks, qt.HasLen, 0)

	// nothing left to mine
	block, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block, qt.IsNil)
}

func TestRejectTx(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	first := n.transfer(3, bob)
	_, err := n.local.SendTx(ctx, first)
	c.Assert(err, qt.IsNil)

	// same note, other recipient
	_, err = n.local.SendTx(ctx, n.transfer(3, alice))
	c.Assert(err, qt.ErrorIs, ErrTxRejected)

	tampered := n.increment(1)
	tampered.Data.PublicDataUpdateRequests[0].NewValue = types.NewFr(100)
	_, err = n.local.SendTx(ctx, tampered)
	c.Assert(err, qt.ErrorIs, ErrTxRejected)
	c.Assert(err, qt.ErrorIs, tx.ErrInvalidTx)

	stale := n.increment(1)
	stale.HistoricRoots.PrivateData = types.NewFr(1234)
	_, err = n.local.SendTx(ctx, stale)
	c.Assert(err, qt.ErrorIs, ErrTxRejected)

	_, err = n.local.GetTxReceipt(ctx, types.TxHash{Fr: types.NewFr(77)})
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)

	// once mined, the nullifier is in the tree
	late := n.transfer(2, bob)
	_, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	_, err = n.local.SendTx(ctx, late)
	c.Assert(err, qt.ErrorIs, ErrTxRejected)
	c.Assert(err, qt.ErrorIs, merkle.ErrDuplicateNullifier)
}

func TestStalePublicState(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	// both read the counter at zero
	first, second := n.increment(1), n.increment(2)
	_, err := n.local.SendTx(ctx, first)
	c.Assert(err, qt.IsNil)
	_, err = n.local.SendTx(ctx, second)
	c.Assert(err, qt.IsNil)

	block, err := n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.TxHashes, qt.DeepEquals, []types.TxHash{first.Hash})
	r := n.receipt(second)
	c.Assert(r.Status, qt.Equals, TxStatusDropped)
	c.Assert(r.Error, qt.Not(qt.Equals), "")

	// a dropped tx can be queued again, and is dropped again
	_, err = n.local.SendTx(ctx, second)
	c.Assert(err, qt.IsNil)
	c.Assert(n.receipt(second).Status, qt.Equals, TxStatusPending)
	_, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n.receipt(second).Status, qt.Equals, TxStatusDropped)

	// assembled again on top of the new state it goes through
	third := n.increment(2)
	_, err = n.local.SendTx(ctx, third)
	c.Assert(err, qt.IsNil)
	_, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	v, err := n.forest.StorageAt(counterIndex(c))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, types.NewFr(3))
}

func TestSendTxTwice(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	inc := n.increment(1)
	for range 2 {
		hash, err := n.local.SendTx(ctx, inc)
		c.Assert(err, qt.IsNil)
		c.Assert(hash, qt.Equals, inc.Hash)
	}
	c.Assert(n.local.PendingTxs(), qt.Equals, 1)

	block, err := n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.TxHashes, qt.DeepEquals, []types.TxHash{inc.Hash})
	hash, err := n.local.SendTx(ctx, inc)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Equals, inc.Hash)
	c.Assert(n.local.PendingTxs(), qt.Equals, 0)
	c.Assert(n.receipt(inc).Status, qt.Equals, TxStatusMined)

	// the hash must still match the tx
	forged := *inc
	forged.Data.PublicDataUpdateRequests = append([]tx.PublicDataUpdateRequest(nil), inc.Data.PublicDataUpdateRequests...)
	forged.Data.PublicDataUpdateRequests[0].NewValue = types.NewFr(9)
	_, err = n.local.SendTx(ctx, &forged)
	c.Assert(err, qt.ErrorIs, ErrTxRejected)
}

// cancelAfter reports canceled once its checks are used up.
type cancelAfter struct {
	context.Context
	checks int
}

func (c *cancelAfter) Err() error {
	if c.checks == 0 {
		return context.Canceled
	}
	c.checks--
	return nil
}

func TestMineCanceled(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	inc := n.increment(1)
	mint := n.tx(alice, tokenAddr, "mint_batch", abi.FieldOf(alice.Fr), abi.NewInteger(1), abi.FieldOf(types.NewFr(1)))
	for _, sent := range []*tx.Tx{inc, mint} {
		_, err := n.local.SendTx(ctx, sent)
		c.Assert(err, qt.IsNil)
	}

	// canceled after the first tx was taken
	_, err := n.local.Mine(&cancelAfter{Context: ctx, checks: 1})
	c.Assert(err, qt.ErrorIs, context.Canceled)
	c.Assert(n.local.PendingTxs(), qt.Equals, 2)
	c.Assert(n.receipt(inc).Status, qt.Equals, TxStatusPending)

	block, err := n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.Number, qt.Equals, uint64(1))
	c.Assert(block.TxHashes, qt.DeepEquals, []types.TxHash{inc.Hash, mint.Hash})
	c.Assert(n.receipt(mint).Status, qt.Equals, TxStatusMined)
}

func TestDeploy(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	block, err := n.local.Deploy(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block, qt.IsNil)

	block, err = n.local.Deploy(ctx, merkle.ContractData{Address: counterAddr}, merkle.ContractData{Address: tokenAddr})
	c.Assert(err, qt.IsNil)
	c.Assert(block.Number, qt.Equals, uint64(1))
	c.Assert(block.TxHashes, qt.HasLen, 0)
	for _, addr := range []types.AztecAddress{counterAddr, tokenAddr} {
		deployed, err := n.forest.IsContractDeployed(addr)
		c.Assert(err, qt.IsNil)
		c.Assert(deployed, qt.IsTrue)
	}
	blocks, err := n.local.GetBlocks(ctx, 1, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(blocks, qt.HasLen, 1)

	// txs are still mined on top
	_, err = n.local.SendTx(ctx, n.increment(1))
	c.Assert(err, qt.IsNil)
	block, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.Number, qt.Equals, uint64(2))
}

func TestBlockLimitsAndMessages(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	var txs []*tx.Tx
	for i := range 3 {
		mint := n.tx(alice, tokenAddr, "mint_batch", abi.FieldOf(alice.Fr), abi.NewInteger(1), abi.FieldOf(types.NewFr(uint64(i))))
		_, err := n.local.SendTx(ctx, mint)
		c.Assert(err, qt.IsNil)
		txs = append(txs, mint)
	}
	n.local.AddL1ToL2Message(types.NewFr(99))

	block, err := n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.TxHashes, qt.HasLen, types.KernelsPerBaseRollup)
	c.Assert(block.Update.L1ToL2Messages, qt.DeepEquals, []types.Fr{types.NewFr(99)})
	c.Assert(block.Update.Commitments, qt.HasLen, 2*types.MaxNewCommitmentsPerTx)

	block, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.Number, qt.Equals, uint64(2))
	c.Assert(block.TxHashes, qt.DeepEquals, []types.TxHash{txs[2].Hash})
	c.Assert(block.Update.L1ToL2Messages, qt.HasLen, 0)

	// a block with only messages
	n.local.AddL1ToL2Message(types.NewFr(100))
	block, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(block.TxHashes, qt.HasLen, 0)
	size, err := n.forest.Size(merkle.TreeL1ToL2Messages)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(3<<types.L1ToL2MsgSubtreeHeight))
}

func TestStartMining(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n.local.Start(ctx, 10*time.Millisecond)
	t1 := n.increment(1)
	_, err := n.local.SendTx(ctx, t1)
	c.Assert(err, qt.IsNil)

	deadline := time.Now().Add(5 * time.Second)
	for n.receipt(t1).Status == TxStatusPending {
		c.Assert(time.Now().Before(deadline), qt.IsTrue, qt.Commentf("tx not mined"))
		time.Sleep(10 * time.Millisecond)
	}
	c.Assert(n.receipt(t1).Status, qt.Equals, TxStatusMined)
}
