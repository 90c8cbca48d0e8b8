package tx

import (
	"errors"

	"github.com/vocdoni/aztec-rpc/merkle"
)

var (
	// ErrInvalidRequest is returned for malformed tx requests.
	ErrInvalidRequest = errors.New("invalid tx request")
	// ErrRejected wraps the cause of a rejected assembly. Every operation on a
	// rejected assembly returns it.
	ErrRejected = errors.New("tx rejected")
	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("invalid assembly state")
	// ErrInvalidCallResult is returned when an executor reports something a
	// call is not allowed to do.
	ErrInvalidCallResult = errors.New("invalid call result")
	// ErrDuplicateNullifier is returned when a nullifier is repeated inside
	// the tx or already registered in the nullifier tree.
	ErrDuplicateNullifier = merkle.ErrDuplicateNullifier
	// ErrInvalidTx is returned by Verify when a sealed tx does not match its
	// contents.
	ErrInvalidTx = errors.New("invalid tx")
)
