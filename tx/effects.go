package tx

import (
	"github.com/vocdoni/aztec-rpc/accumulator"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
)

// Side effect categories, as reported by capacity errors.
const (
	CategoryCommitments              = "commitments"
	CategoryNullifiers               = "nullifiers"
	CategoryReadRequests             = "read_requests"
	CategoryPrivateCallStack         = "private_call_stack"
	CategoryPublicCallStack          = "public_call_stack"
	CategoryL2ToL1Messages           = "l2_to_l1_messages"
	CategoryPublicDataReads          = "public_data_reads"
	CategoryPublicDataUpdateRequests = "public_data_update_requests"
	CategoryNewContracts             = "new_contracts"
)

// StorageRead is a public storage read reported by a call, keyed by the
// storage slot of the called contract.
type StorageRead struct {
	Slot  types.Fr `json:"slot"`
	Value types.Fr `json:"value"`
}

// StorageWrite is a public storage write reported by a call.
type StorageWrite struct {
	Slot     types.Fr `json:"slot"`
	OldValue types.Fr `json:"oldValue"`
	NewValue types.Fr `json:"newValue"`
}

// CallResult is the outcome of executing one call. Commitments and
// nullifiers are inner values, siloed by the assembler. Nested calls carry
// the callee, function and arguments; their call context is filled in by
// the assembler.
type CallResult struct {
	ReturnValues   []types.Fr
	Commitments    []types.Fr
	Nullifiers     []types.Fr
	ReadRequests   []types.Fr
	PrivateCalls   []FunctionCall
	PublicCalls    []FunctionCall
	L2ToL1Messages []types.Fr
	StorageReads   []StorageRead
	StorageWrites  []StorageWrite
}

// PublicDataRead is a public state read keyed by public leaf index.
type PublicDataRead struct {
	LeafIndex types.Fr `json:"leafIndex" cbor:"1,keyasint"`
	Value     types.Fr `json:"value" cbor:"2,keyasint"`
}

// Hash returns the PUBLIC_DATA_READ hash.
func (r PublicDataRead) Hash(h *domain.Hasher) (types.Fr, error) {
	return h.PublicDataRead(r.LeafIndex, r.Value)
}

// PublicDataUpdateRequest is a public state write keyed by public leaf
// index.
type PublicDataUpdateRequest struct {
	LeafIndex types.Fr `json:"leafIndex" cbor:"1,keyasint"`
	OldValue  types.Fr `json:"oldValue" cbor:"2,keyasint"`
	NewValue  types.Fr `json:"newValue" cbor:"3,keyasint"`
}

// Hash returns the PUBLIC_DATA_UPDATE_REQUEST hash.
func (u PublicDataUpdateRequest) Hash(h *domain.Hasher) (types.Fr, error) {
	return h.PublicDataUpdateRequest(u.LeafIndex, u.OldValue, u.NewValue)
}

// NewContractData is a contract created by a transaction.
type NewContractData struct {
	ContractAddress  types.AztecAddress `json:"contractAddress" cbor:"1,keyasint"`
	PortalAddress    types.EthAddress   `json:"portalContractAddress" cbor:"2,keyasint"`
	FunctionTreeRoot types.Fr           `json:"functionTreeRoot" cbor:"3,keyasint"`
}

// Leaf returns the contract tree leaf of the contract.
func (c NewContractData) Leaf(h *domain.Hasher) (types.Fr, error) {
	return h.ContractLeaf(c.ContractAddress, c.PortalAddress, c.FunctionTreeRoot)
}

// CallEffects are the side effects of one call, bounded by the per call
// limits.
type CallEffects struct {
	Commitments              *accumulator.Bounded[types.Fr]
	Nullifiers               *accumulator.Bounded[types.Fr]
	ReadRequests             *accumulator.Bounded[types.Fr]
	PrivateCallStack         *accumulator.Bounded[types.Fr]
	PublicCallStack          *accumulator.Bounded[types.Fr]
	L2ToL1Messages           *accumulator.Bounded[types.Fr]
	PublicDataReads          *accumulator.Bounded[PublicDataRead]
	PublicDataUpdateRequests *accumulator.Bounded[PublicDataUpdateRequest]
}

// NewCallEffects returns empty per call accumulators.
func NewCallEffects() *CallEffects {
	call := accumulator.ScopeCall
	return &CallEffects{
		Commitments:              accumulator.New[types.Fr](CategoryCommitments, call, types.MaxNewCommitmentsPerCall),
		Nullifiers:               accumulator.New[types.Fr](CategoryNullifiers, call, types.MaxNewNullifiersPerCall),
		ReadRequests:             accumulator.New[types.Fr](CategoryReadRequests, call, types.MaxReadRequestsPerCall),
		PrivateCallStack:         accumulator.New[types.Fr](CategoryPrivateCallStack, call, types.MaxPrivateCallStackLengthPerCall),
		PublicCallStack:          accumulator.New[types.Fr](CategoryPublicCallStack, call, types.MaxPublicCallStackLengthPerCall),
		L2ToL1Messages:           accumulator.New[types.Fr](CategoryL2ToL1Messages, call, types.MaxNewL2ToL1MsgsPerCall),
		PublicDataReads:          accumulator.New[PublicDataRead](CategoryPublicDataReads, call, types.MaxPublicDataReadsPerCall),
		PublicDataUpdateRequests: accumulator.New[PublicDataUpdateRequest](CategoryPublicDataUpdateRequests, call, types.MaxPublicDataUpdateRequestsPerCall),
	}
}

// AccumulatedData are the side effects of a whole transaction.
type AccumulatedData struct {
	NewCommitments           []types.Fr                `json:"newCommitments" cbor:"1,keyasint"`
	NewNullifiers            []types.Fr                `json:"newNullifiers" cbor:"2,keyasint"`
	ReadRequests             []types.Fr                `json:"readRequests" cbor:"3,keyasint"`
	PrivateCallStack         []types.Fr                `json:"privateCallStack" cbor:"4,keyasint"`
	PublicCallStack          []types.Fr                `json:"publicCallStack" cbor:"5,keyasint"`
	NewL2ToL1Messages        []types.Fr                `json:"newL2ToL1Msgs" cbor:"6,keyasint"`
	PublicDataReads          []PublicDataRead          `json:"publicDataReads" cbor:"7,keyasint"`
	PublicDataUpdateRequests []PublicDataUpdateRequest `json:"publicDataUpdateRequests" cbor:"8,keyasint"`
	NewContracts             []NewContractData         `json:"newContracts" cbor:"9,keyasint"`
}

type limit struct {
	category string
	n, max   int
}

func (d *AccumulatedData) limits() []limit {
	return []limit{
		{CategoryCommitments, len(d.NewCommitments), types.MaxNewCommitmentsPerTx},
		{CategoryNullifiers, len(d.NewNullifiers), types.MaxNewNullifiersPerTx},
		{CategoryReadRequests, len(d.ReadRequests), types.MaxReadRequestsPerTx},
		{CategoryPrivateCallStack, len(d.PrivateCallStack), types.MaxPrivateCallStackLengthPerTx},
		{CategoryPublicCallStack, len(d.PublicCallStack), types.MaxPublicCallStackLengthPerTx},
		{CategoryL2ToL1Messages, len(d.NewL2ToL1Messages), types.MaxNewL2ToL1MsgsPerTx},
		{CategoryPublicDataReads, len(d.PublicDataReads), types.MaxPublicDataReadsPerTx},
		{CategoryPublicDataUpdateRequests, len(d.PublicDataUpdateRequests), types.MaxPublicDataUpdateRequestsPerTx},
		{CategoryNewContracts, len(d.NewContracts), types.MaxNewContractsPerTx},
	}
}

// checkLimits reports the first category over its per tx limit.
func (d *AccumulatedData) checkLimits() error {
	for _, l := range d.limits() {
		if l.n > l.max {
			return &accumulator.CapacityExceededError{
				Category:  l.category,
				Scope:     accumulator.ScopeTx,
				Limit:     l.max,
				Attempted: l.n,
			}
		}
	}
	return nil
}

func padded(fs []types.Fr, n int) []types.Fr {
	out := make([]types.Fr, n)
	copy(out, fs)
	return out
}

// PrivateEffectsHash digests the private side effects, each category padded
// to its per tx limit.
func (d *AccumulatedData) PrivateEffectsHash(h *domain.Hasher) (types.Fr, error) {
	var fields []types.Fr
	fields = append(fields, padded(d.NewCommitments, types.MaxNewCommitmentsPerTx)...)
	fields = append(fields, padded(d.NewNullifiers, types.MaxNewNullifiersPerTx)...)
	fields = append(fields, padded(d.ReadRequests, types.MaxReadRequestsPerTx)...)
	fields = append(fields, padded(d.PrivateCallStack, types.MaxPrivateCallStackLengthPerTx)...)
	fields = append(fields, padded(d.NewL2ToL1Messages, types.MaxNewL2ToL1MsgsPerTx)...)
	leaves := make([]types.Fr, 0, len(d.NewContracts))
	for _, c := range d.NewContracts {
		leaf, err := c.Leaf(h)
		if err != nil {
			return types.Fr{}, err
		}
		leaves = append(leaves, leaf)
	}
	fields = append(fields, padded(leaves, types.MaxNewContractsPerTx)...)
	return h.KernelOutput(false, fields...)
}

// PublicEffectsHash digests the public side effects.
func (d *AccumulatedData) PublicEffectsHash(h *domain.Hasher) (types.Fr, error) {
	fields := padded(d.PublicCallStack, types.MaxPublicCallStackLengthPerTx)
	reads := make([]types.Fr, 0, len(d.PublicDataReads))
	for _, r := range d.PublicDataReads {
		rh, err := r.Hash(h)
		if err != nil {
			return types.Fr{}, err
		}
		reads = append(reads, rh)
	}
	fields = append(fields, padded(reads, types.MaxPublicDataReadsPerTx)...)
	updates := make([]types.Fr, 0, len(d.PublicDataUpdateRequests))
	for _, u := range d.PublicDataUpdateRequests {
		uh, err := u.Hash(h)
		if err != nil {
			return types.Fr{}, err
		}
		updates = append(updates, uh)
	}
	fields = append(fields, padded(updates, types.MaxPublicDataUpdateRequestsPerTx)...)
	return h.KernelOutput(true, fields...)
}
