package tx

import (
	"context"
	"fmt"

	"github.com/vocdoni/aztec-rpc/accumulator"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/types"
)

// State is the lifecycle state of an Assembly.
type State int

const (
	StateOpen State = iota
	StateCallsExecuting
	StateRolledUp
	StateSealed
	StateRejected
)

var stateNames = map[State]string{
	StateOpen:           "open",
	StateCallsExecuting: "calls-executing",
	StateRolledUp:       "rolled-up",
	StateSealed:         "sealed",
	StateRejected:       "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type callFrame struct {
	call    FunctionCall
	depth   int
	effects *CallEffects
}

type queuedCall struct {
	call  FunctionCall
	depth int
}

// Assembly builds one transaction. Its operations must be called in order:
// Execute, RollUp and Seal. Any capacity overflow, invalid call result or
// nullifier reuse rejects the assembly for good. An Assembly is not safe for
// concurrent use.
type Assembly struct {
	hasher   *domain.Hasher
	request  TxRequest
	entry    FunctionCall
	historic merkle.Roots
	hash     types.TxHash

	state State
	cause error

	frames       []*callFrame
	pending      map[types.Fr]types.Fr
	returnValues []types.Fr
	privateCalls int
	publicCalls  int

	data *AccumulatedData
	tx   *Tx
}

// NewAssembly opens the assembly of req. The entry call must run the
// requested function with the requested arguments; its call context is
// derived from the request. The historic roots are pinned into the tx.
func NewAssembly(h *domain.Hasher, req *TxRequest, entry FunctionCall, historic merkle.Roots) (*Assembly, error) {
	if h == nil {
		h = domain.Default
	}
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if entry.FunctionData != req.FunctionData {
		return nil, fmt.Errorf("%w: entry call function does not match the request", ErrInvalidRequest)
	}
	if !sameFields(entry.Args, req.Args) {
		return nil, fmt.Errorf("%w: entry call arguments do not match the request", ErrInvalidRequest)
	}
	hash, err := req.Hash(h)
	if err != nil {
		return nil, err
	}
	txCtx := req.TxContext
	if txCtx.IsContractDeploymentTx {
		if !entry.FunctionData.IsConstructor {
			return nil, fmt.Errorf("%w: deployment entry call is not a constructor", ErrInvalidRequest)
		}
		addr, _, err := ContractAddress(h, entry.FunctionData, entry.Args, txCtx.ContractDeploymentData)
		if err != nil {
			return nil, err
		}
		if !addr.Equal(entry.Contract.Fr) {
			return nil, fmt.Errorf("%w: deployment data derives %s, entry call targets %s",
				ErrInvalidRequest, addr, entry.Contract)
		}
	}
	entry.Args = append([]types.Fr(nil), entry.Args...)
	entry.CallContext = CallContext{
		MsgSender:              req.Origin,
		StorageContractAddress: entry.Contract,
		PortalContractAddress:  entry.CallContext.PortalContractAddress,
		IsStaticCall:           entry.CallContext.IsStaticCall,
		IsContractDeployment:   txCtx.IsContractDeploymentTx,
	}
	return &Assembly{
		hasher:   h,
		request:  *req,
		entry:    entry,
		historic: historic,
		hash:     hash,
		state:    StateOpen,
		pending:  make(map[types.Fr]types.Fr),
	}, nil
}

func sameFields(a, b []types.Fr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// State returns the current state.
func (a *Assembly) State() State { return a.state }

// Hash returns the hash of the tx being assembled.
func (a *Assembly) Hash() types.TxHash { return a.hash }

// Err returns the rejection cause, or nil.
func (a *Assembly) Err() error { return a.cause }

// ReturnValues returns the return values of the entry call. They are only
// available once Execute succeeded.
func (a *Assembly) ReturnValues() []types.Fr {
	return append([]types.Fr(nil), a.returnValues...)
}

// Data returns the accumulated side effects, available once RollUp
// succeeded.
func (a *Assembly) Data() *AccumulatedData { return a.data }

func (a *Assembly) expect(s State) error {
	if a.state == StateRejected {
		return a.cause
	}
	if a.state != s {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, a.state, s)
	}
	return nil
}

func (a *Assembly) reject(err error) error {
	a.state = StateRejected
	a.cause = fmt.Errorf("%w: %w", ErrRejected, err)
	log.Debugw("tx assembly rejected", "hash", a.hash.String(), "error", err.Error())
	return a.cause
}

// Execute runs the entry call and every nested call through exec. Private
// calls run depth first. The public calls they request are queued in request
// order and run once the private phase is over, each one running its own
// nested public calls depth first.
func (a *Assembly) Execute(ctx context.Context, exec Executor) error {
	if err := a.expect(StateOpen); err != nil {
		return err
	}
	a.state = StateCallsExecuting
	var queue []queuedCall
	if a.entry.FunctionData.IsPrivate {
		rv, q, err := a.runPrivate(ctx, exec, a.entry, 0)
		if err != nil {
			return a.reject(err)
		}
		a.returnValues = rv
		queue = q
	} else {
		queue = []queuedCall{{call: a.entry}}
	}
	for i, q := range queue {
		rv, err := a.runPublic(ctx, exec, q)
		if err != nil {
			return a.reject(err)
		}
		if i == 0 && !a.entry.FunctionData.IsPrivate {
			a.returnValues = rv
		}
	}
	return nil
}

func (a *Assembly) execute(ctx context.Context, exec Executor, call FunctionCall, depth int) (*CallResult, error) {
	res, err := exec.Execute(ctx, &ExecutionRequest{
		Call:          call,
		Origin:        a.request.Origin,
		TxContext:     a.request.TxContext,
		HistoricRoots: a.historic,
		PendingWrites: a.pending,
		Depth:         depth,
	})
	if err != nil {
		return nil, fmt.Errorf("error executing %s on %s: %w", call.FunctionData.Selector, call.Contract, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: no result for %s on %s", ErrInvalidCallResult, call.FunctionData.Selector, call.Contract)
	}
	if len(res.ReturnValues) > types.ReturnValuesLength {
		return nil, fmt.Errorf("%w: %d return values, at most %d", ErrInvalidCallResult,
			len(res.ReturnValues), types.ReturnValuesLength)
	}
	if call.CallContext.IsStaticCall && (len(res.Commitments) > 0 || len(res.Nullifiers) > 0 ||
		len(res.StorageWrites) > 0 || len(res.L2ToL1Messages) > 0) {
		return nil, fmt.Errorf("%w: static call to %s changed state", ErrInvalidCallResult, call.Contract)
	}
	return res, nil
}

func (a *Assembly) runPrivate(ctx context.Context, exec Executor, call FunctionCall, depth int) ([]types.Fr, []queuedCall, error) {
	res, err := a.execute(ctx, exec, call, depth)
	if err != nil {
		return nil, nil, err
	}
	if len(res.StorageReads) > 0 || len(res.StorageWrites) > 0 {
		return nil, nil, fmt.Errorf("%w: private function on %s accessed public storage", ErrInvalidCallResult, call.Contract)
	}
	frame := &callFrame{call: call, depth: depth, effects: NewCallEffects()}
	a.frames = append(a.frames, frame)
	contract := call.CallContext.StorageContractAddress
	for _, c := range res.Commitments {
		siloed, err := a.hasher.SiloCommitment(contract, c)
		if err != nil {
			return nil, nil, err
		}
		if err := frame.effects.Commitments.Push(siloed); err != nil {
			return nil, nil, err
		}
	}
	for _, n := range res.Nullifiers {
		siloed, err := a.hasher.SiloNullifier(contract, n)
		if err != nil {
			return nil, nil, err
		}
		if err := frame.effects.Nullifiers.Push(siloed); err != nil {
			return nil, nil, err
		}
	}
	for _, r := range res.ReadRequests {
		siloed, err := a.hasher.SiloCommitment(contract, r)
		if err != nil {
			return nil, nil, err
		}
		if err := frame.effects.ReadRequests.Push(siloed); err != nil {
			return nil, nil, err
		}
	}
	if err := a.recordMessages(frame, res.L2ToL1Messages); err != nil {
		return nil, nil, err
	}
	children := make([]FunctionCall, 0, len(res.PrivateCalls))
	for _, c := range res.PrivateCalls {
		if !c.FunctionData.IsPrivate {
			return nil, nil, fmt.Errorf("%w: public function requested as private call", ErrInvalidCallResult)
		}
		child, err := a.pushCall(frame, c)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, child)
	}
	var queue []queuedCall
	for _, c := range res.PublicCalls {
		if c.FunctionData.IsPrivate {
			return nil, nil, fmt.Errorf("%w: private function requested as public call", ErrInvalidCallResult)
		}
		child, err := a.pushCall(frame, c)
		if err != nil {
			return nil, nil, err
		}
		queue = append(queue, queuedCall{call: child, depth: depth + 1})
	}
	for _, child := range children {
		_, q, err := a.runPrivate(ctx, exec, child, depth+1)
		if err != nil {
			return nil, nil, err
		}
		queue = append(queue, q...)
	}
	return res.ReturnValues, queue, nil
}

func (a *Assembly) runPublic(ctx context.Context, exec Executor, q queuedCall) ([]types.Fr, error) {
	call := q.call
	res, err := a.execute(ctx, exec, call, q.depth)
	if err != nil {
		return nil, err
	}
	if len(res.PrivateCalls) > 0 {
		return nil, fmt.Errorf("%w: public function on %s requested private calls", ErrInvalidCallResult, call.Contract)
	}
	if len(res.Commitments) > 0 || len(res.Nullifiers) > 0 || len(res.ReadRequests) > 0 {
		return nil, fmt.Errorf("%w: public function on %s emitted private side effects", ErrInvalidCallResult, call.Contract)
	}
	frame := &callFrame{call: call, depth: q.depth, effects: NewCallEffects()}
	a.frames = append(a.frames, frame)
	contract := call.CallContext.StorageContractAddress
	for _, r := range res.StorageReads {
		index, err := a.hasher.PublicLeafIndex(contract, r.Slot)
		if err != nil {
			return nil, err
		}
		if v, ok := a.pending[index]; ok && !v.Equal(r.Value) {
			return nil, fmt.Errorf("%w: read of slot %s returned %s, written value is %s",
				ErrInvalidCallResult, r.Slot, r.Value, v)
		}
		if err := frame.effects.PublicDataReads.Push(PublicDataRead{LeafIndex: index, Value: r.Value}); err != nil {
			return nil, err
		}
	}
	for _, w := range res.StorageWrites {
		index, err := a.hasher.PublicLeafIndex(contract, w.Slot)
		if err != nil {
			return nil, err
		}
		if v, ok := a.pending[index]; ok && !v.Equal(w.OldValue) {
			return nil, fmt.Errorf("%w: write of slot %s replaces %s, written value is %s",
				ErrInvalidCallResult, w.Slot, w.OldValue, v)
		}
		update := PublicDataUpdateRequest{LeafIndex: index, OldValue: w.OldValue, NewValue: w.NewValue}
		if err := frame.effects.PublicDataUpdateRequests.Push(update); err != nil {
			return nil, err
		}
		a.pending[index] = w.NewValue
	}
	if err := a.recordMessages(frame, res.L2ToL1Messages); err != nil {
		return nil, err
	}
	children := make([]FunctionCall, 0, len(res.PublicCalls))
	for _, c := range res.PublicCalls {
		if c.FunctionData.IsPrivate {
			return nil, fmt.Errorf("%w: private function requested as public call", ErrInvalidCallResult)
		}
		child, err := a.pushCall(frame, c)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	for _, child := range children {
		if _, err := a.runPublic(ctx, exec, queuedCall{call: child, depth: q.depth + 1}); err != nil {
			return nil, err
		}
	}
	return res.ReturnValues, nil
}

func (a *Assembly) recordMessages(frame *callFrame, contents []types.Fr) error {
	cc := frame.call.CallContext
	for _, content := range contents {
		msg, err := a.hasher.L2ToL1Message(cc.StorageContractAddress, cc.PortalContractAddress,
			a.request.TxContext.ChainID, content)
		if err != nil {
			return err
		}
		if err := frame.effects.L2ToL1Messages.Push(msg); err != nil {
			return err
		}
	}
	return nil
}

// pushCall fills the call context of a nested call, records it in the call
// stack of its parent and counts it against the per tx call stack limit.
func (a *Assembly) pushCall(parent *callFrame, c FunctionCall) (FunctionCall, error) {
	child := FunctionCall{
		Contract:     c.Contract,
		FunctionData: c.FunctionData,
		Args:         append([]types.Fr(nil), c.Args...),
		CallContext: CallContext{
			MsgSender:              parent.call.Contract,
			StorageContractAddress: c.Contract,
			PortalContractAddress:  c.CallContext.PortalContractAddress,
			IsStaticCall:           c.CallContext.IsStaticCall || parent.call.CallContext.IsStaticCall,
		},
	}
	if len(child.Args) > types.ArgsLength {
		return FunctionCall{}, fmt.Errorf("%w: nested call with %d arguments, at most %d",
			ErrInvalidCallResult, len(child.Args), types.ArgsLength)
	}
	item, err := child.StackItem(a.hasher)
	if err != nil {
		return FunctionCall{}, err
	}
	if child.FunctionData.IsPrivate {
		if err := parent.effects.PrivateCallStack.Push(item); err != nil {
			return FunctionCall{}, err
		}
		a.privateCalls++
		if a.privateCalls > types.MaxPrivateCallStackLengthPerTx {
			return FunctionCall{}, &accumulator.CapacityExceededError{
				Category:  CategoryPrivateCallStack,
				Scope:     accumulator.ScopeTx,
				Limit:     types.MaxPrivateCallStackLengthPerTx,
				Attempted: a.privateCalls,
			}
		}
		return child, nil
	}
	if err := parent.effects.PublicCallStack.Push(item); err != nil {
		return FunctionCall{}, err
	}
	a.publicCalls++
	if a.publicCalls > types.MaxPublicCallStackLengthPerTx {
		return FunctionCall{}, &accumulator.CapacityExceededError{
			Category:  CategoryPublicCallStack,
			Scope:     accumulator.ScopeTx,
			Limit:     types.MaxPublicCallStackLengthPerTx,
			Attempted: a.publicCalls,
		}
	}
	return child, nil
}

func rollUpFrames[T any](frames []*callFrame, category string, limit int,
	get func(*CallEffects) *accumulator.Bounded[T], extra ...*accumulator.Bounded[T],
) ([]T, error) {
	parts := append([]*accumulator.Bounded[T](nil), extra...)
	for _, f := range frames {
		parts = append(parts, get(f.effects))
	}
	out, err := accumulator.RollUp(category, accumulator.ScopeTx, limit, parts...)
	if err != nil {
		return nil, err
	}
	return out.Items(), nil
}

// RollUp merges the side effects of every call, in execution order, under
// the per tx limits. Commitments are made unique with their position in the
// tx. A deployment tx additionally emits the initialisation nullifier and
// the new contract.
func (a *Assembly) RollUp() error {
	if err := a.expect(StateCallsExecuting); err != nil {
		return err
	}
	data, err := a.rollUp()
	if err != nil {
		return a.reject(err)
	}
	a.data = data
	a.state = StateRolledUp
	return nil
}

func (a *Assembly) rollUp() (*AccumulatedData, error) {
	data := &AccumulatedData{}
	siloed, err := rollUpFrames(a.frames, CategoryCommitments, types.MaxNewCommitmentsPerTx,
		func(e *CallEffects) *accumulator.Bounded[types.Fr] { return e.Commitments })
	if err != nil {
		return nil, err
	}
	data.NewCommitments = make([]types.Fr, len(siloed))
	for i, c := range siloed {
		nonce, err := a.hasher.CommitmentNonce(a.hash.Fr, uint64(i))
		if err != nil {
			return nil, err
		}
		if data.NewCommitments[i], err = a.hasher.UniqueCommitment(nonce, c); err != nil {
			return nil, err
		}
	}

	var initNullifier []*accumulator.Bounded[types.Fr]
	txCtx := a.request.TxContext
	if txCtx.IsContractDeploymentTx {
		inner, err := a.hasher.InitialisationNullifier(a.entry.Contract)
		if err != nil {
			return nil, err
		}
		n, err := a.hasher.SiloNullifier(a.entry.Contract, inner)
		if err != nil {
			return nil, err
		}
		b := accumulator.New[types.Fr](CategoryNullifiers, accumulator.ScopeTx, 1)
		if err := b.Push(n); err != nil {
			return nil, err
		}
		initNullifier = append(initNullifier, b)
		data.NewContracts = []NewContractData{{
			ContractAddress:  a.entry.Contract,
			PortalAddress:    txCtx.ContractDeploymentData.PortalContractAddress,
			FunctionTreeRoot: txCtx.ContractDeploymentData.FunctionTreeRoot,
		}}
	}
	if data.NewNullifiers, err = rollUpFrames(a.frames, CategoryNullifiers, types.MaxNewNullifiersPerTx,
		func(e *CallEffects) *accumulator.Bounded[types.Fr] { return e.Nullifiers }, initNullifier...); err != nil {
		return nil, err
	}
	if data.ReadRequests, err = rollUpFrames(a.frames, CategoryReadRequests, types.MaxReadRequestsPerTx,
		func(e *CallEffects) *accumulator.Bounded[types.Fr] { return e.ReadRequests }); err != nil {
		return nil, err
	}
	if data.PrivateCallStack, err = rollUpFrames(a.frames, CategoryPrivateCallStack, types.MaxPrivateCallStackLengthPerTx,
		func(e *CallEffects) *accumulator.Bounded[types.Fr] { return e.PrivateCallStack }); err != nil {
		return nil, err
	}
	if data.PublicCallStack, err = rollUpFrames(a.frames, CategoryPublicCallStack, types.MaxPublicCallStackLengthPerTx,
		func(e *CallEffects) *accumulator.Bounded[types.Fr] { return e.PublicCallStack }); err != nil {
		return nil, err
	}
	if data.NewL2ToL1Messages, err = rollUpFrames(a.frames, CategoryL2ToL1Messages, types.MaxNewL2ToL1MsgsPerTx,
		func(e *CallEffects) *accumulator.Bounded[types.Fr] { return e.L2ToL1Messages }); err != nil {
		return nil, err
	}
	if data.PublicDataReads, err = rollUpFrames(a.frames, CategoryPublicDataReads, types.MaxPublicDataReadsPerTx,
		func(e *CallEffects) *accumulator.Bounded[PublicDataRead] { return e.PublicDataReads }); err != nil {
		return nil, err
	}
	if data.PublicDataUpdateRequests, err = rollUpFrames(a.frames, CategoryPublicDataUpdateRequests,
		types.MaxPublicDataUpdateRequestsPerTx,
		func(e *CallEffects) *accumulator.Bounded[PublicDataUpdateRequest] { return e.PublicDataUpdateRequests }); err != nil {
		return nil, err
	}
	if err := data.checkLimits(); err != nil {
		return nil, err
	}
	return data, nil
}

// Seal checks the nullifiers of the tx against each other and against
// checker, then emits the immutable Tx. Nothing is inserted into any tree.
func (a *Assembly) Seal(checker NullifierChecker) (*Tx, error) {
	if err := a.expect(StateRolledUp); err != nil {
		return nil, err
	}
	if checker == nil {
		return nil, fmt.Errorf("%w: no nullifier checker", ErrInvalidState)
	}
	seen := make(map[types.Fr]struct{}, len(a.data.NewNullifiers))
	for _, n := range a.data.NewNullifiers {
		if _, ok := seen[n]; ok {
			return nil, a.reject(fmt.Errorf("%w: %s repeated in tx", ErrDuplicateNullifier, n))
		}
		seen[n] = struct{}{}
		registered, err := checker.IsNullifierRegistered(n)
		if err != nil {
			return nil, fmt.Errorf("error checking nullifier %s: %w", n, err)
		}
		if registered {
			return nil, a.reject(fmt.Errorf("%w: %s already registered", ErrDuplicateNullifier, n))
		}
	}
	privHash, err := a.data.PrivateEffectsHash(a.hasher)
	if err != nil {
		return nil, err
	}
	pubHash, err := a.data.PublicEffectsHash(a.hasher)
	if err != nil {
		return nil, err
	}
	a.tx = &Tx{
		Hash:               a.hash,
		Request:            a.request,
		Data:               *a.data,
		PrivateEffectsHash: privHash,
		PublicEffectsHash:  pubHash,
		HistoricRoots:      a.historic,
		ReturnValues:       a.ReturnValues(),
	}
	a.state = StateSealed
	log.Debugw("tx sealed", "hash", a.hash.String(),
		"commitments", len(a.data.NewCommitments), "nullifiers", len(a.data.NewNullifiers),
		"publicCalls", len(a.data.PublicCallStack))
	return a.tx, nil
}

// Assemble runs the whole lifecycle of an assembly.
func Assemble(ctx context.Context, a *Assembly, exec Executor, checker NullifierChecker) (*Tx, error) {
	if err := a.Execute(ctx, exec); err != nil {
		return nil, err
	}
	if err := a.RollUp(); err != nil {
		return nil, err
	}
	return a.Seal(checker)
}
