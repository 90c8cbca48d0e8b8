// Package node is the network layer of the client: the interface to the
// sequencer that accepts txs and mines them into blocks, an in-process
// sequencer and a JSON-RPC client and server for it.
package node

import (
	"context"
	"errors"

	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

var (
	// ErrTxNotFound is returned for hashes the node never accepted.
	ErrTxNotFound = errors.New("tx not found")
	// ErrTxRejected is returned when the node refuses a tx.
	ErrTxRejected = errors.New("tx rejected")
)

// TxStatus is the state of a tx known to the node.
type TxStatus string

const (
	TxStatusPending TxStatus = "pending"
	TxStatusMined   TxStatus = "mined"
	TxStatusDropped TxStatus = "dropped"
)

// TxReceipt reports the status of a tx.
type TxReceipt struct {
	TxHash          types.TxHash        `json:"txHash"`
	Status          TxStatus            `json:"status"`
	Error           string              `json:"error,omitempty"`
	BlockNumber     uint64              `json:"blockNumber,omitempty"`
	ContractAddress *types.AztecAddress `json:"contractAddress,omitempty"`
}

// Block is a mined block: the state change it applies and the txs it
// includes.
type Block struct {
	Number   uint64             `json:"number"`
	Hash     types.Fr           `json:"hash"`
	Roots    merkle.Roots       `json:"roots"`
	Update   merkle.BlockUpdate `json:"update"`
	TxHashes []types.TxHash     `json:"txHashes"`
}

// Node is the sequencer as seen by the client.
type Node interface {
	// SendTx submits a sealed tx and returns its hash.
	SendTx(ctx context.Context, t *tx.Tx) (types.TxHash, error)
	// GetTxReceipt returns the receipt of a tx, or ErrTxNotFound.
	GetTxReceipt(ctx context.Context, hash types.TxHash) (*TxReceipt, error)
	// GetBlocks returns up to limit blocks starting at number from. Block
	// numbers start at 1.
	GetBlocks(ctx context.Context, from uint64, limit int) ([]*Block, error)
	// BlockNumber returns the number of the last mined block.
	BlockNumber(ctx context.Context) (uint64, error)
}
