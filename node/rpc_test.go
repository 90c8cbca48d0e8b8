package node

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/types"
)

func testClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           5 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func startRPC(c *qt.C, h http.Handler) *Client {
	srv := httptest.NewServer(h)
	c.Cleanup(srv.Close)
	client, err := Dial(context.Background(), srv.URL, testClientConfig())
	c.Assert(err, qt.IsNil)
	c.Cleanup(client.Close)
	return client
}

func TestRPCClient(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()
	srv, err := NewRPCServer(n.local)
	c.Assert(err, qt.IsNil)
	client := startRPC(c, srv)

	sent := n.increment(4)
	hash, err := client.SendTx(ctx, sent)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Equals, sent.Hash)

	hash, err = client.SendTx(ctx, sent)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Equals, sent.Hash)
	tampered := n.increment(4)
	tampered.Data.PublicDataUpdateRequests[0].NewValue = types.NewFr(40)
	_, err = client.SendTx(ctx, tampered)
	c.Assert(err, qt.ErrorIs, ErrTxRejected)

	receipt, err := client.GetTxReceipt(ctx, hash)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Status, qt.Equals, TxStatusPending)

	_, err = client.GetTxReceipt(ctx, types.TxHash{Fr: types.NewFr(5)})
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)

	_, err = n.local.Mine(ctx)
	c.Assert(err, qt.IsNil)

	receipt, err = client.GetTxReceipt(ctx, hash)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Status, qt.Equals, TxStatusMined)
	c.Assert(receipt.BlockNumber, qt.Equals, uint64(1))

	number, err := client.BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(number, qt.Equals, uint64(1))

	blocks, err := client.GetBlocks(ctx, 1, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(blocks, qt.HasLen, 1)
	local, err := n.local.GetBlocks(ctx, 1, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(blocks[0].Hash, qt.Equals, local[0].Hash)
	c.Assert(blocks[0].Update.PublicWrites, qt.DeepEquals, local[0].Update.PublicWrites)
	c.Assert(blocks[0].TxHashes, qt.DeepEquals, []types.TxHash{hash})
}

func TestClientRetries(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	srv, err := NewRPCServer(n.local)
	c.Assert(err, qt.IsNil)

	var calls atomic.Int32
	failing := 2
	client := startRPC(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(calls.Add(1)) <= failing {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		srv.ServeHTTP(w, r)
	}))

	number, err := client.BlockNumber(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(number, qt.Equals, uint64(0))
	c.Assert(calls.Load(), qt.Equals, int32(3))

	// node errors are not retried
	calls.Store(int32(failing))
	_, err = client.GetTxReceipt(context.Background(), types.TxHash{Fr: types.NewFr(1)})
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)
	c.Assert(calls.Load(), qt.Equals, int32(failing+1))

	// the attempts are bounded
	calls.Store(-100)
	_, err = client.BlockNumber(context.Background())
	c.Assert(err, qt.IsNotNil)
	c.Assert(calls.Load(), qt.Equals, int32(-100+testClientConfig().MaxRetries+1))
}

func TestClientResendsLostSubmission(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	srv, err := NewRPCServer(n.local)
	c.Assert(err, qt.IsNil)

	// the node accepts the first submission but its response is lost
	var calls atomic.Int32
	client := startRPC(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			srv.ServeHTTP(httptest.NewRecorder(), r)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		srv.ServeHTTP(w, r)
	}))

	sent := n.increment(1)
	hash, err := client.SendTx(context.Background(), sent)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Equals, sent.Hash)
	c.Assert(calls.Load(), qt.Equals, int32(2))
	c.Assert(n.local.PendingTxs(), qt.Equals, 1)
}
