package merkle

import "errors"

var (
	// ErrInvalidSubtreeSize is returned when a batch is not exactly one subtree.
	ErrInvalidSubtreeSize = errors.New("invalid subtree size")
	// ErrTreeFull is returned when a batch does not fit in the tree.
	ErrTreeFull = errors.New("tree is full")
	// ErrDuplicateNullifier is returned when a nullifier is already present in
	// the nullifier tree or repeated inside the inserted batch.
	ErrDuplicateNullifier = errors.New("duplicate nullifier")
	// ErrIndexOutOfRange is returned for leaf indexes outside of the tree.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnknownTree is returned for tree ids the forest does not hold.
	ErrUnknownTree = errors.New("unknown tree")
	// ErrInvalidBlock is returned when a block update is malformed.
	ErrInvalidBlock = errors.New("invalid block")
)
