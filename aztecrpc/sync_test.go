package aztecrpc

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/node"
	"github.com/vocdoni/aztec-rpc/simulator"
	"github.com/vocdoni/aztec-rpc/storage"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db/metadb"
)

// remoteEnv is a client talking to a node over JSON-RPC, each one with its
// own forest.
type remoteEnv struct {
	client *Client
	sync   *Synchronizer
	local  *node.Local
	forest *merkle.Forest
}

func newRemoteEnv(c *qt.C) *remoteEnv {
	nodeForest, err := merkle.NewForest(metadb.NewTest(c.TB), nil)
	c.Assert(err, qt.IsNil)
	local := node.NewLocal(nodeForest, node.LocalConfig{ChainID: testChainID, Version: testVersion})
	srv, err := node.NewRPCServer(local)
	c.Assert(err, qt.IsNil)
	httpSrv := httptest.NewServer(srv)
	c.Cleanup(httpSrv.Close)
	remote, err := node.Dial(context.Background(), httpSrv.URL, node.DefaultClientConfig())
	c.Assert(err, qt.IsNil)
	c.Cleanup(remote.Close)

	st := storage.New(metadb.NewTest(c.TB))
	forest, err := merkle.NewForest(st.ForestDB(), nil)
	c.Assert(err, qt.IsNil)
	return &remoteEnv{
		client: New(st, forest, remote, Config{ChainID: testChainID, Version: testVersion}),
		sync:   NewSynchronizer(remote, forest, 1),
		local:  local,
		forest: forest,
	}
}

func TestSynchronizer(t *testing.T) {
	c := qt.New(t)
	e := newRemoteEnv(c)
	ctx := context.Background()

	hash, addr, err := e.client.CreateSmartAccount(ctx, CreateAccountOptions{})
	c.Assert(err, qt.IsNil)
	_, err = e.local.Mine(ctx)
	c.Assert(err, qt.IsNil)

	receipt, err := e.client.GetTxReceipt(ctx, hash)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Status, qt.Equals, node.TxStatusMined)
	deployed, err := e.client.IsContractDeployed(ctx, addr)
	c.Assert(err, qt.IsNil)
	c.Assert(deployed, qt.IsFalse)

	deploy, counter, err := e.client.CreateDeploymentTx(ctx, simulator.CounterAbi(),
		[]abi.Value{abi.NewInteger(1), abi.FieldOf(addr.Fr)}, types.EthAddress{}, DeployOptions{})
	c.Assert(err, qt.IsNil)
	_, err = e.client.SendTx(ctx, deploy)
	c.Assert(err, qt.IsNil)
	_, err = e.local.Mine(ctx)
	c.Assert(err, qt.IsNil)

	// batches of one block
	n, err := e.sync.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
	c.Assert(e.forest.BlockNumber(), qt.Equals, uint64(2))
	want, err := e.local.Forest().Roots()
	c.Assert(err, qt.IsNil)
	got, err := e.forest.Roots()
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)

	for _, a := range []types.AztecAddress{addr, counter} {
		deployed, err := e.client.IsContractDeployed(ctx, a)
		c.Assert(err, qt.IsNil)
		c.Assert(deployed, qt.IsTrue)
	}
	pub, err := e.client.GetAccountPublicKey(ctx, addr)
	c.Assert(err, qt.IsNil)
	x, err := e.client.GetStorageAt(ctx, addr, types.NewFr(1))
	c.Assert(err, qt.IsNil)
	c.Assert(x, qt.Equals, pub.X)

	n, err = e.sync.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
}

func TestSynchronizerStart(t *testing.T) {
	c := qt.New(t)
	e := newRemoteEnv(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.local.AddL1ToL2Message(types.NewFr(42))
	_, err := e.local.Mine(ctx)
	c.Assert(err, qt.IsNil)

	e.sync.Start(ctx, 10*time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for e.forest.BlockNumber() == 0 {
		c.Assert(time.Now().Before(deadline), qt.IsTrue, qt.Commentf("block not synced"))
		time.Sleep(10 * time.Millisecond)
	}
	size, err := e.forest.Size(merkle.TreeL1ToL2Messages)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(1<<types.L1ToL2MsgSubtreeHeight))
}
