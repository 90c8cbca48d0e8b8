package types

// Function call limits.
const (
	ArgsLength         = 16
	ReturnValuesLength = 4
)

// Side effect limits of a single function call.
const (
	MaxNewCommitmentsPerCall           = 4
	MaxNewNullifiersPerCall            = 4
	MaxPrivateCallStackLengthPerCall   = 4
	MaxPublicCallStackLengthPerCall    = 4
	MaxNewL2ToL1MsgsPerCall            = 2
	MaxPublicDataUpdateRequestsPerCall = 8
	MaxPublicDataReadsPerCall          = 8
	MaxReadRequestsPerCall             = 4
)

// Side effect limits of a whole transaction.
const (
	MaxNewCommitmentsPerTx               = 16
	MaxNewNullifiersPerTx                = 16
	MaxPrivateCallStackLengthPerTx       = 8
	MaxPublicCallStackLengthPerTx        = 8
	MaxNewL2ToL1MsgsPerTx                = 2
	MaxPublicDataUpdateRequestsPerTx     = 8
	MaxPublicDataReadsPerTx              = 8
	MaxNewContractsPerTx                 = 1
	MaxOptionallyRevealedDataLengthPerTx = 4
	MaxReadRequestsPerTx                 = 16
	NumEncryptedLogsHashesPerTx          = 1
	NumUnencryptedLogsHashesPerTx        = 1
)

// Rollup shape.
const (
	NumberOfL1L2MessagesPerRollup = 16
	KernelsPerBaseRollup          = 2
)

// Tree heights.
const (
	VKTreeHeight                   = 3
	FunctionTreeHeight             = 4
	ContractTreeHeight             = 16
	PrivateDataTreeHeight          = 32
	PublicDataTreeHeight           = 254
	NullifierTreeHeight            = 16
	L1ToL2MsgTreeHeight            = 16
	PrivateDataTreeRootsTreeHeight = 16
	ContractTreeRootsTreeHeight    = 16
	L1ToL2MsgTreeRootsTreeHeight   = 16
	RollupVKTreeHeight             = 8
	HistoricBlocksTreeHeight       = 16
	// HistoricRootsTreeHeight is used for the roots trees of the nullifier
	// and public data trees, which have no dedicated constant.
	HistoricRootsTreeHeight = 16
)

// Subtree heights used when a rollup inserts a batch of leaves, and the
// length of the sibling path of such a subtree.
const (
	ContractSubtreeHeight               = 1
	ContractSubtreeSiblingPathLength    = 15
	PrivateDataSubtreeHeight            = 5
	PrivateDataSubtreeSiblingPathLength = 27
	NullifierSubtreeHeight              = 5
	NullifierSubtreeSiblingPathLength   = 11
	L1ToL2MsgSubtreeHeight              = 4
	L1ToL2MsgSubtreeSiblingPathLength   = 12
)

// Encoding and layout constants.
const (
	FunctionSelectorNumBytes                  = 4
	MappingSlotPedersenSeparator              = 4
	NumFieldsPerSha256                        = 2
	L1ToL2MessageLength                       = 8
	L1ToL2MessageOracleCallLength             = 26
	MaxNoteFieldsLength                       = 20
	GetNoteOracleReturnLength                 = 23
	MaxNotesPerPage                           = 10
	ViewNoteOracleReturnLength                = 212
	CallContextLength                         = 6
	CommitmentTreesRootsLength                = 5
	FunctionDataLength                        = 4
	ContractDeploymentDataLength              = 6
	PrivateCircuitPublicInputsLength          = 56
	ContractStorageUpdateRequestLength        = 3
	ContractStorageReadLength                 = 2
	PublicCircuitPublicInputsLength           = 75
	GetNotesOracleReturnLength                = 86
	EmptyNullifiedCommitment                  = 1000000
	CallPrivateFunctionReturnSize             = 62
	PublicCircuitPublicInputsHashInputLength  = 41
	PrivateCircuitPublicInputsHashInputLength = 46
	CommitmentsNumBytesPerBaseRollup          = 1024
	NullifiersNumBytesPerBaseRollup           = 1024
	PublicDataWritesNumBytesPerBaseRollup     = 1024
	ContractsNumBytesPerBaseRollup            = 64
	ContractDataNumBytesPerBaseRollup         = 128
	ContractDataNumBytesPerBaseRollupUnpadded = 104
	L2ToL1MsgsNumBytesPerBaseRollup           = 128
	LogsHashesNumBytesPerBaseRollup           = 128
)
