package tx

import (
	"context"

	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/types"
)

// ExecutionRequest is one call handed to an Executor.
type ExecutionRequest struct {
	Call      FunctionCall
	Origin    types.AztecAddress
	TxContext TxContext
	// HistoricRoots are the roots the tx is built against.
	HistoricRoots merkle.Roots
	// PendingWrites holds the public data written earlier in the tx, keyed
	// by public leaf index. Executors must not modify it.
	PendingWrites map[types.Fr]types.Fr
	// Depth is 0 for the entrypoint.
	Depth int
}

// Executor runs contract functions.
type Executor interface {
	Execute(ctx context.Context, req *ExecutionRequest) (*CallResult, error)
}

// NullifierChecker tells whether a siloed nullifier is already in the
// nullifier tree.
type NullifierChecker interface {
	IsNullifierRegistered(nullifier types.Fr) (bool, error)
}
