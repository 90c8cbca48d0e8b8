package domain

import "fmt"

// GeneratorIndex tags every hashed artifact of the protocol. The values are
// fixed by the protocol and must never be renumbered.
type GeneratorIndex uint32

const (
	Commitment                 GeneratorIndex = 1
	CommitmentNonce            GeneratorIndex = 2
	UniqueCommitment           GeneratorIndex = 3
	SiloedCommitment           GeneratorIndex = 4
	Nullifier                  GeneratorIndex = 5
	InitialisationNullifier    GeneratorIndex = 6
	OuterNullifier             GeneratorIndex = 7
	PublicDataRead             GeneratorIndex = 8
	PublicDataUpdateRequest    GeneratorIndex = 9
	FunctionData               GeneratorIndex = 10
	FunctionLeaf               GeneratorIndex = 11
	ContractDeploymentData     GeneratorIndex = 12
	Constructor                GeneratorIndex = 13
	ConstructorArgs            GeneratorIndex = 14
	ContractAddress            GeneratorIndex = 15
	ContractLeaf               GeneratorIndex = 16
	CallContext                GeneratorIndex = 17
	CallStackItem              GeneratorIndex = 18
	CallStackItem2             GeneratorIndex = 19
	L1ToL2MessageSecret        GeneratorIndex = 20
	L2ToL1Msg                  GeneratorIndex = 21
	TxContext                  GeneratorIndex = 22
	PublicLeafIndex            GeneratorIndex = 23
	PublicDataLeaf             GeneratorIndex = 24
	SignedTxRequest            GeneratorIndex = 25
	GlobalVariables            GeneratorIndex = 26
	PartialContractAddress     GeneratorIndex = 27
	TxRequest                  GeneratorIndex = 33
	VK                         GeneratorIndex = 41
	PrivateCircuitPublicInputs GeneratorIndex = 42
	PublicCircuitPublicInputs  GeneratorIndex = 43
	FunctionArgs               GeneratorIndex = 44
)

var generatorNames = map[GeneratorIndex]string{
	Commitment:                 "COMMITMENT",
	CommitmentNonce:            "COMMITMENT_NONCE",
	UniqueCommitment:           "UNIQUE_COMMITMENT",
	SiloedCommitment:           "SILOED_COMMITMENT",
	Nullifier:                  "NULLIFIER",
	InitialisationNullifier:    "INITIALISATION_NULLIFIER",
	OuterNullifier:             "OUTER_NULLIFIER",
	PublicDataRead:             "PUBLIC_DATA_READ",
	PublicDataUpdateRequest:    "PUBLIC_DATA_UPDATE_REQUEST",
	FunctionData:               "FUNCTION_DATA",
	FunctionLeaf:               "FUNCTION_LEAF",
	ContractDeploymentData:     "CONTRACT_DEPLOYMENT_DATA",
	Constructor:                "CONSTRUCTOR",
	ConstructorArgs:            "CONSTRUCTOR_ARGS",
	ContractAddress:            "CONTRACT_ADDRESS",
	ContractLeaf:               "CONTRACT_LEAF",
	CallContext:                "CALL_CONTEXT",
	CallStackItem:              "CALL_STACK_ITEM",
	CallStackItem2:             "CALL_STACK_ITEM_2",
	L1ToL2MessageSecret:        "L1_TO_L2_MESSAGE_SECRET",
	L2ToL1Msg:                  "L2_TO_L1_MSG",
	TxContext:                  "TX_CONTEXT",
	PublicLeafIndex:            "PUBLIC_LEAF_INDEX",
	PublicDataLeaf:             "PUBLIC_DATA_LEAF",
	SignedTxRequest:            "SIGNED_TX_REQUEST",
	GlobalVariables:            "GLOBAL_VARIABLES",
	PartialContractAddress:     "PARTIAL_CONTRACT_ADDRESS",
	TxRequest:                  "TX_REQUEST",
	VK:                         "VK",
	PrivateCircuitPublicInputs: "PRIVATE_CIRCUIT_PUBLIC_INPUTS",
	PublicCircuitPublicInputs:  "PUBLIC_CIRCUIT_PUBLIC_INPUTS",
	FunctionArgs:               "FUNCTION_ARGS",
}

// arity holds the exact number of inputs of the tags with a fixed layout.
// Tags not listed accept any non empty input.
var arity = map[GeneratorIndex]int{
	CommitmentNonce:         2,
	UniqueCommitment:        2,
	SiloedCommitment:        2,
	InitialisationNullifier: 1,
	OuterNullifier:          2,
	PublicDataRead:          2,
	PublicDataUpdateRequest: 3,
	FunctionData:            3,
	FunctionLeaf:            4,
	ContractDeploymentData:  6,
	Constructor:             3,
	ContractAddress:         3,
	ContractLeaf:            3,
	CallContext:             6,
	CallStackItem:           4,
	CallStackItem2:          4,
	L1ToL2MessageSecret:     1,
	L2ToL1Msg:               4,
	TxContext:               6,
	PublicLeafIndex:         2,
	PublicDataLeaf:          2,
	GlobalVariables:         9,
	PartialContractAddress:  4,
	TxRequest:               5,
}

// Valid reports whether g is one of the protocol tags.
func (g GeneratorIndex) Valid() bool {
	_, ok := generatorNames[g]
	return ok
}

// Arity returns the fixed number of inputs of g, or 0 if it takes a variable
// number of inputs.
func (g GeneratorIndex) Arity() int {
	return arity[g]
}

func (g GeneratorIndex) String() string {
	if name, ok := generatorNames[g]; ok {
		return name
	}
	return fmt.Sprintf("GeneratorIndex(%d)", uint32(g))
}

// Generators returns all protocol tags.
func Generators() []GeneratorIndex {
	out := make([]GeneratorIndex, 0, len(generatorNames))
	for g := range generatorNames {
		out = append(out, g)
	}
	return out
}

// StorageSlotGeneratorIndex tags the derivation of storage slots.
type StorageSlotGeneratorIndex uint32

const (
	BaseSlot               StorageSlotGeneratorIndex = 0
	MappingSlot            StorageSlotGeneratorIndex = 1
	MappingSlotPlaceholder StorageSlotGeneratorIndex = 2
)

// PrivateStateNoteGeneratorIndex tags the fields of a private state note.
type PrivateStateNoteGeneratorIndex uint32

const (
	NoteValue   PrivateStateNoteGeneratorIndex = 1
	NoteOwner   PrivateStateNoteGeneratorIndex = 2
	NoteCreator PrivateStateNoteGeneratorIndex = 3
	NoteSalt    PrivateStateNoteGeneratorIndex = 4
	NoteNonce   PrivateStateNoteGeneratorIndex = 5
	NoteMemo    PrivateStateNoteGeneratorIndex = 6
	NoteIsDummy PrivateStateNoteGeneratorIndex = 7
)

// PrivateStateType distinguishes partitioned from whole private states.
type PrivateStateType uint32

const (
	Partitioned PrivateStateType = 1
	Whole       PrivateStateType = 2
)
