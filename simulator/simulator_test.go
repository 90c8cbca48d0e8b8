package simulator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/accumulator"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

type testWorld struct {
	c         *qt.C
	contracts map[types.AztecAddress]*abi.ContractAbi
	storage   map[types.Fr]types.Fr
	sim       *Simulator
}

func newTestWorld(c *qt.C) *testWorld {
	w := &testWorld{
		c:         c,
		contracts: make(map[types.AztecAddress]*abi.ContractAbi),
		storage:   make(map[types.Fr]types.Fr),
	}
	w.sim = New(nil, w, w, nil)
	return w
}

func (w *testWorld) ContractAbi(_ context.Context, address types.AztecAddress) (*abi.ContractAbi, error) {
	def, ok := w.contracts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, address)
	}
	return def, nil
}

func (w *testWorld) StorageAt(index types.Fr) (types.Fr, error) {
	return w.storage[index], nil
}

func (w *testWorld) IsNullifierRegistered(types.Fr) (bool, error) {
	return false, nil
}

func (w *testWorld) setStorage(contract types.AztecAddress, slot, value types.Fr) {
	index, err := domain.Default.PublicLeafIndex(contract, slot)
	w.c.Assert(err, qt.IsNil)
	w.storage[index] = value
}

func (w *testWorld) call(contract types.AztecAddress, name string, values ...abi.Value) tx.FunctionCall {
	def, ok := w.contracts[contract]
	w.c.Assert(ok, qt.IsTrue)
	fn, err := def.Function(name)
	w.c.Assert(err, qt.IsNil)
	args, err := abi.EncodeArgs(fn, values)
	w.c.Assert(err, qt.IsNil)
	return tx.FunctionCall{
		Contract:     contract,
		FunctionData: tx.FunctionData{Selector: fn.Selector(), IsPrivate: fn.IsPrivate(), IsConstructor: fn.IsConstructor},
		Args:         args,
	}
}

func (w *testWorld) request(origin types.AztecAddress, call tx.FunctionCall) *tx.TxRequest {
	return &tx.TxRequest{
		Origin:       origin,
		FunctionData: call.FunctionData,
		Args:         call.Args,
		TxContext:    tx.TxContext{ChainID: types.NewFr(1), Version: types.NewFr(1)},
	}
}

func (w *testWorld) assemble(origin types.AztecAddress, call tx.FunctionCall) (*tx.Tx, error) {
	a, err := tx.NewAssembly(nil, w.request(origin, call), call, merkle.Roots{})
	w.c.Assert(err, qt.IsNil)
	return tx.Assemble(context.Background(), a, w.sim, w)
}

func addr(n uint64) types.AztecAddress { return types.AztecAddress{Fr: types.NewFr(n)} }

func TestCounter(t *testing.T) {
	c := qt.New(t)
	w := newTestWorld(c)
	counter := addr(10)
	w.contracts[counter] = CounterAbi()
	w.setStorage(counter, counterValueSlot, types.NewFr(3))

	res, err := w.assemble(addr(1), w.call(counter, "increment", abi.NewInteger(5)))
	c.Assert(err, qt.IsNil)
	c.Assert(res.ReturnValues, qt.DeepEquals, []types.Fr{types.NewFr(8)})
	c.Assert(res.Data.PublicDataReads, qt.HasLen, 1)
	c.Assert(res.Data.PublicDataUpdateRequests, qt.HasLen, 1)
	update := res.Data.PublicDataUpdateRequests[0]
	c.Assert(update.OldValue, qt.Equals, types.NewFr(3))
	c.Assert(update.NewValue, qt.Equals, types.NewFr(8))

	// nested public calls see the writes of the previous ones
	res, err = w.assemble(addr(1), w.call(counter, "increment_twice", abi.NewInteger(2)))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.PublicCallStack, qt.HasLen, 2)
	c.Assert(res.Data.PublicDataUpdateRequests, qt.HasLen, 2)
	c.Assert(res.Data.PublicDataUpdateRequests[1].OldValue, qt.Equals, types.NewFr(5))
	c.Assert(res.Data.PublicDataUpdateRequests[1].NewValue, qt.Equals, types.NewFr(7))

	// only the owner resets
	w.setStorage(counter, counterOwnerSlot, addr(1).Fr)
	_, err = w.assemble(addr(2), w.call(counter, "reset"))
	c.Assert(err, qt.ErrorIs, ErrAssertion)
	_, err = w.assemble(addr(1), w.call(counter, "reset"))
	c.Assert(err, qt.IsNil)
}

func TestView(t *testing.T) {
	c := qt.New(t)
	w := newTestWorld(c)
	counter := addr(10)
	w.contracts[counter] = CounterAbi()
	w.setStorage(counter, counterValueSlot, types.NewFr(7))

	out, err := w.sim.View(context.Background(), addr(1), w.call(counter, "get_value"))
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []types.Fr{types.NewFr(7)})

	_, err = w.sim.View(context.Background(), addr(1), w.call(counter, "increment", abi.NewInteger(1)))
	c.Assert(err, qt.ErrorIs, ErrInvalidCall)

	_, err = w.sim.Execute(context.Background(), &tx.ExecutionRequest{Call: w.call(counter, "get_value")})
	c.Assert(err, qt.ErrorIs, ErrInvalidCall)

	_, err = w.sim.View(context.Background(), addr(1), tx.FunctionCall{Contract: addr(99)})
	c.Assert(err, qt.ErrorIs, ErrContractNotFound)

	// the function data must match the function
	call := w.call(counter, "increment", abi.NewInteger(1))
	call.FunctionData.IsPrivate = true
	_, err = w.sim.Execute(context.Background(), &tx.ExecutionRequest{Call: call})
	c.Assert(err, qt.ErrorIs, ErrInvalidCall)
}

func TestPrivateToken(t *testing.T) {
	c := qt.New(t)
	w := newTestWorld(c)
	token := addr(30)
	owner := addr(1)
	w.contracts[token] = PrivateTokenAbi()

	transfer := func(amount uint64) tx.FunctionCall {
		return w.call(token, "transfer",
			abi.NewInteger(amount), abi.FieldOf(owner.Fr), abi.NewInteger(10),
			abi.FieldOf(types.NewFr(5)), abi.FieldOf(addr(2).Fr))
	}
	res, err := w.assemble(owner, transfer(3))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.NewNullifiers, qt.HasLen, 1)
	c.Assert(res.Data.NewCommitments, qt.HasLen, 2)
	c.Assert(res.Data.ReadRequests, qt.HasLen, 1)
	c.Assert(res.ReturnValues, qt.HasLen, 2)

	note, err := TokenNoteCommitment(domain.Default, owner, 10, types.NewFr(5))
	c.Assert(err, qt.IsNil)
	nullifier, err := domain.Default.NoteNullifier(note, owner.Fr)
	c.Assert(err, qt.IsNil)
	c.Assert(res.ReturnValues[1], qt.Equals, nullifier)
	siloed, err := domain.Default.SiloNullifier(token, nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.NewNullifiers[0], qt.Equals, siloed)

	// spending everything leaves no change note
	res, err = w.assemble(owner, transfer(10))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.NewCommitments, qt.HasLen, 1)

	_, err = w.assemble(owner, transfer(11))
	c.Assert(err, qt.ErrorIs, ErrAssertion)
	_, err = w.assemble(addr(3), transfer(1))
	c.Assert(err, qt.ErrorIs, ErrAssertion)

	res, err = w.assemble(owner, w.call(token, "withdraw",
		abi.NewInteger(4), abi.FieldOf(owner.Fr), abi.NewInteger(10),
		abi.FieldOf(types.NewFr(5)), abi.FieldOf(types.NewFr(0xbeef))))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.NewL2ToL1Messages, qt.HasLen, 1)
	c.Assert(res.Data.NewCommitments, qt.HasLen, 1)

	out, err := w.sim.View(context.Background(), owner, w.call(token, "note_commitment",
		abi.FieldOf(owner.Fr), abi.NewInteger(10), abi.FieldOf(types.NewFr(5))))
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []types.Fr{note})
}

func TestMintBatchLimits(t *testing.T) {
	c := qt.New(t)
	w := newTestWorld(c)
	token := addr(30)
	w.contracts[token] = PrivateTokenAbi()

	mint := func(count uint64) tx.FunctionCall {
		return w.call(token, "mint_batch", abi.FieldOf(addr(1).Fr), abi.NewInteger(count), abi.FieldOf(types.NewFr(100)))
	}
	res, err := w.assemble(addr(1), mint(types.MaxNewCommitmentsPerCall))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.NewCommitments, qt.HasLen, types.MaxNewCommitmentsPerCall)

	_, err = w.assemble(addr(1), mint(types.MaxNewCommitmentsPerCall+1))
	c.Assert(err, qt.ErrorIs, accumulator.ErrCapacityExceeded)
	var ce *accumulator.CapacityExceededError
	c.Assert(errors.As(err, &ce), qt.IsTrue)
	c.Assert(ce.Scope, qt.Equals, accumulator.ScopeCall)
	c.Assert(ce.Category, qt.Equals, tx.CategoryCommitments)
}

func TestAccountEntrypoint(t *testing.T) {
	c := qt.New(t)
	w := newTestWorld(c)
	account, counter := addr(20), addr(10)
	w.contracts[account] = SchnorrAccountAbi()
	w.contracts[counter] = CounterAbi()

	increment, err := CounterAbi().Function("increment")
	c.Assert(err, qt.IsNil)
	sel := increment.Selector()
	selField := sel.Fr()
	args := make(abi.Array, EntrypointArgs)
	for i := range args {
		args[i] = abi.FieldOf(types.Fr{})
	}
	args[0] = abi.FieldOf(types.NewFr(5))
	call := w.call(account, "entrypoint",
		abi.FieldOf(counter.Fr), abi.FieldOf(selField), abi.Bool(true), abi.NewInteger(1), args)

	res, err := w.assemble(account, call)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.PublicCallStack, qt.HasLen, 1)
	c.Assert(res.Data.PublicDataUpdateRequests, qt.HasLen, 1)
	c.Assert(res.Data.PublicDataUpdateRequests[0].NewValue, qt.Equals, types.NewFr(5))

	// somebody else cannot use the account
	_, err = w.assemble(addr(1), call)
	c.Assert(err, qt.ErrorIs, ErrAssertion)
}

func TestDeployCounter(t *testing.T) {
	c := qt.New(t)
	w := newTestWorld(c)
	h := domain.Default
	def := CounterAbi()
	ctor, ok := def.Constructor()
	c.Assert(ok, qt.IsTrue)
	args, err := abi.EncodeArgs(ctor, []abi.Value{abi.NewInteger(42), abi.FieldOf(addr(1).Fr)})
	c.Assert(err, qt.IsNil)
	root, err := abi.FunctionTreeRoot(h, def)
	c.Assert(err, qt.IsNil)
	vk, err := h.VKHash(ctor.VerificationKey)
	c.Assert(err, qt.IsNil)
	deployment := tx.ContractDeploymentData{
		ConstructorVKHash:   vk,
		FunctionTreeRoot:    root,
		ContractAddressSalt: types.NewFr(77),
	}
	fd := tx.FunctionData{Selector: ctor.Selector(), IsPrivate: true, IsConstructor: true}
	address, _, err := tx.ContractAddress(h, fd, args, deployment)
	c.Assert(err, qt.IsNil)
	w.contracts[address] = def

	call := tx.FunctionCall{Contract: address, FunctionData: fd, Args: args}
	req := w.request(address, call)
	req.TxContext.IsContractDeploymentTx = true
	req.TxContext.ContractDeploymentData = deployment
	a, err := tx.NewAssembly(h, req, call, merkle.Roots{})
	c.Assert(err, qt.IsNil)
	res, err := tx.Assemble(context.Background(), a, w.sim, w)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Data.NewContracts, qt.HasLen, 1)
	c.Assert(res.Data.NewContracts[0].FunctionTreeRoot, qt.Equals, root)
	c.Assert(res.Data.NewNullifiers, qt.HasLen, 1)
	c.Assert(res.Data.PublicDataUpdateRequests, qt.HasLen, 2)
	c.Assert(res.Data.PublicDataUpdateRequests[0].NewValue, qt.Equals, types.NewFr(42))
}

func TestForbiddenOperations(t *testing.T) {
	c := qt.New(t)
	def := contractAbi("Probe",
		function("private_read", abi.Secret, nil),
		function("public_note", abi.Open, nil),
	)
	registry, err := NewRegistry(&Contract{Abi: def, Functions: map[string]Function{
		"private_read": func(e *Env) error {
			_, err := e.ReadPublic(types.NewFr(1))
			return err
		},
		"public_note": func(e *Env) error {
			_, err := e.NewNote(types.NewFr(1))
			return err
		},
	}})
	c.Assert(err, qt.IsNil)
	w := newTestWorld(c)
	w.sim = New(nil, w, w, registry)
	reader := addr(40)
	w.contracts[reader] = def

	_, err = w.assemble(addr(1), w.call(reader, "private_read"))
	c.Assert(err, qt.ErrorIs, ErrForbidden)
	_, err = w.assemble(addr(1), w.call(reader, "public_note"))
	c.Assert(err, qt.ErrorIs, ErrForbidden)

	w.contracts[addr(41)] = CounterAbi()
	_, err = w.assemble(addr(1), w.call(addr(41), "increment", abi.NewInteger(1)))
	c.Assert(err, qt.ErrorIs, ErrNotImplemented)
}
