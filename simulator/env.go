package simulator

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// Env is what a running contract function sees of the world. Every side
// effect goes through it and ends up in the call result.
type Env struct {
	ctx    context.Context
	hasher *domain.Hasher
	state  StateReader
	req    *tx.ExecutionRequest
	fn     *abi.Function
	args   map[string]abi.Value
	result *tx.CallResult

	reads   map[types.Fr]types.Fr
	written map[types.Fr]int
}

func newEnv(ctx context.Context, h *domain.Hasher, state StateReader, req *tx.ExecutionRequest,
	fn *abi.Function, values []abi.Value,
) *Env {
	args := make(map[string]abi.Value, len(values))
	for i, p := range fn.Parameters {
		args[p.Name] = values[i]
	}
	return &Env{
		ctx:     ctx,
		hasher:  h,
		state:   state,
		req:     req,
		fn:      fn,
		args:    args,
		result:  &tx.CallResult{},
		reads:   make(map[types.Fr]types.Fr),
		written: make(map[types.Fr]int),
	}
}

// Context returns the context of the execution.
func (e *Env) Context() context.Context { return e.ctx }

// Hasher returns the protocol hasher.
func (e *Env) Hasher() *domain.Hasher { return e.hasher }

// Function returns the ABI of the running function.
func (e *Env) Function() *abi.Function { return e.fn }

// Address returns the address of the contract whose storage is in use.
func (e *Env) Address() types.AztecAddress { return e.req.Call.CallContext.StorageContractAddress }

// MsgSender returns the caller: the origin for the entrypoint, the calling
// contract otherwise.
func (e *Env) MsgSender() types.AztecAddress { return e.req.Call.CallContext.MsgSender }

// Origin returns the account that sent the tx.
func (e *Env) Origin() types.AztecAddress { return e.req.Origin }

// Portal returns the L1 portal of the running contract.
func (e *Env) Portal() types.EthAddress { return e.req.Call.CallContext.PortalContractAddress }

// ChainID returns the chain id of the tx.
func (e *Env) ChainID() types.Fr { return e.req.TxContext.ChainID }

// Depth returns 0 for the entrypoint of the tx.
func (e *Env) Depth() int { return e.req.Depth }

// Arg returns the argument called name.
func (e *Env) Arg(name string) (abi.Value, error) {
	v, ok := e.args[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no argument %q", abi.ErrArgumentMismatch, e.fn.Name, name)
	}
	return v, nil
}

// FieldArg returns a field argument.
func (e *Env) FieldArg(name string) (types.Fr, error) {
	v, err := e.Arg(name)
	if err != nil {
		return types.Fr{}, err
	}
	f, ok := v.(abi.Field)
	if !ok {
		return types.Fr{}, fmt.Errorf("%w: argument %q is %s", abi.ErrArgumentMismatch, name, v.Kind())
	}
	return f.Fr, nil
}

// AddressArg returns a field argument as an address.
func (e *Env) AddressArg(name string) (types.AztecAddress, error) {
	f, err := e.FieldArg(name)
	return types.AztecAddress{Fr: f}, err
}

// IntArg returns an integer argument.
func (e *Env) IntArg(name string) (*uint256.Int, error) {
	v, err := e.Arg(name)
	if err != nil {
		return nil, err
	}
	i, ok := v.(abi.Integer)
	if !ok || i.Int == nil {
		return nil, fmt.Errorf("%w: argument %q is %s", abi.ErrArgumentMismatch, name, v.Kind())
	}
	return new(uint256.Int).Set(i.Int), nil
}

// BoolArg returns a boolean argument.
func (e *Env) BoolArg(name string) (bool, error) {
	v, err := e.Arg(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(abi.Bool)
	if !ok {
		return false, fmt.Errorf("%w: argument %q is %s", abi.ErrArgumentMismatch, name, v.Kind())
	}
	return bool(b), nil
}

// ArrayArg returns an array argument.
func (e *Env) ArrayArg(name string) (abi.Array, error) {
	v, err := e.Arg(name)
	if err != nil {
		return nil, err
	}
	a, ok := v.(abi.Array)
	if !ok {
		return nil, fmt.Errorf("%w: argument %q is %s", abi.ErrArgumentMismatch, name, v.Kind())
	}
	return a, nil
}

// Return sets the return values, encoded with the return types of the
// function.
func (e *Env) Return(values ...abi.Value) error {
	params := make([]abi.Parameter, len(e.fn.ReturnTypes))
	for i, t := range e.fn.ReturnTypes {
		params[i] = abi.Parameter{Name: fmt.Sprintf("return_%d", i), Type: t}
	}
	fields, err := abi.Encode(params, values)
	if err != nil {
		return fmt.Errorf("return values of %s: %w", e.fn.Name, err)
	}
	e.result.ReturnValues = fields
	return nil
}

// Assert fails the call with ErrAssertion unless cond holds.
func (e *Env) Assert(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return assertion(format, args...)
}

func assertion(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAssertion, fmt.Sprintf(format, args...))
}

func (e *Env) allow(op string, allowed ...abi.FunctionType) error {
	for _, t := range allowed {
		if e.fn.FunctionType == t {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in %s function %s", ErrForbidden, op, e.fn.FunctionType, e.fn.Name)
}

func (e *Env) current(slot types.Fr) (types.Fr, error) {
	if i, ok := e.written[slot]; ok {
		return e.result.StorageWrites[i].NewValue, nil
	}
	if v, ok := e.reads[slot]; ok {
		return v, nil
	}
	index, err := e.hasher.PublicLeafIndex(e.Address(), slot)
	if err != nil {
		return types.Fr{}, err
	}
	if v, ok := e.req.PendingWrites[index]; ok {
		return v, nil
	}
	if e.state == nil {
		return types.Fr{}, nil
	}
	return e.state.StorageAt(index)
}

// ReadPublic reads a public storage slot of the contract. Slots written
// earlier in the call return the written value and are not recorded again.
func (e *Env) ReadPublic(slot types.Fr) (types.Fr, error) {
	if err := e.allow("public storage read", abi.Open, abi.Unconstrained); err != nil {
		return types.Fr{}, err
	}
	_, written := e.written[slot]
	_, read := e.reads[slot]
	v, err := e.current(slot)
	if err != nil {
		return types.Fr{}, fmt.Errorf("error reading slot %s: %w", slot, err)
	}
	if !written && !read {
		e.reads[slot] = v
		e.result.StorageReads = append(e.result.StorageReads, tx.StorageRead{Slot: slot, Value: v})
	}
	return v, nil
}

// WritePublic writes a public storage slot of the contract.
func (e *Env) WritePublic(slot, value types.Fr) error {
	if err := e.allow("public storage write", abi.Open); err != nil {
		return err
	}
	if e.req.Call.CallContext.IsStaticCall {
		return fmt.Errorf("%w: storage write in static call", ErrForbidden)
	}
	if i, ok := e.written[slot]; ok {
		e.result.StorageWrites[i].NewValue = value
		return nil
	}
	old, err := e.current(slot)
	if err != nil {
		return fmt.Errorf("error reading slot %s: %w", slot, err)
	}
	e.written[slot] = len(e.result.StorageWrites)
	e.result.StorageWrites = append(e.result.StorageWrites, tx.StorageWrite{Slot: slot, OldValue: old, NewValue: value})
	return nil
}

// NewNote emits the commitment of a note and returns it.
func (e *Env) NewNote(fields ...types.Fr) (types.Fr, error) {
	if err := e.allow("note creation", abi.Secret); err != nil {
		return types.Fr{}, err
	}
	c, err := e.hasher.NoteCommitment(fields...)
	if err != nil {
		return types.Fr{}, err
	}
	e.result.Commitments = append(e.result.Commitments, c)
	return c, nil
}

// ReadNote requests a proof that the note commitment exists.
func (e *Env) ReadNote(commitment types.Fr) error {
	if err := e.allow("note read", abi.Secret); err != nil {
		return err
	}
	e.result.ReadRequests = append(e.result.ReadRequests, commitment)
	return nil
}

// Nullify emits a nullifier.
func (e *Env) Nullify(nullifier types.Fr) error {
	if err := e.allow("nullifier emission", abi.Secret); err != nil {
		return err
	}
	e.result.Nullifiers = append(e.result.Nullifiers, nullifier)
	return nil
}

// CallPrivate requests a nested private call. It runs after the current
// function returns.
func (e *Env) CallPrivate(to types.AztecAddress, selector types.Selector, args ...types.Fr) error {
	if err := e.allow("private call", abi.Secret); err != nil {
		return err
	}
	e.result.PrivateCalls = append(e.result.PrivateCalls, tx.FunctionCall{
		Contract:     to,
		FunctionData: tx.FunctionData{Selector: selector, IsPrivate: true},
		Args:         args,
	})
	return nil
}

// CallPublic requests a nested public call. Public calls requested by
// private functions run after the private phase of the tx.
func (e *Env) CallPublic(to types.AztecAddress, selector types.Selector, args ...types.Fr) error {
	if err := e.allow("public call", abi.Secret, abi.Open); err != nil {
		return err
	}
	e.result.PublicCalls = append(e.result.PublicCalls, tx.FunctionCall{
		Contract:     to,
		FunctionData: tx.FunctionData{Selector: selector},
		Args:         args,
	})
	return nil
}

// SendL2ToL1 sends a message to the portal of the contract.
func (e *Env) SendL2ToL1(content types.Fr) error {
	if err := e.allow("l2 to l1 message", abi.Secret, abi.Open); err != nil {
		return err
	}
	e.result.L2ToL1Messages = append(e.result.L2ToL1Messages, content)
	return nil
}
