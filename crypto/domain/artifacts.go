package domain

import (
	"crypto/sha256"
	"math/big"

	"github.com/vocdoni/aztec-rpc/types"
)

// fieldChunkBytes is the number of bytes packed in one field element when
// hashing arbitrary byte strings. 31 bytes always fit below the modulus.
const fieldChunkBytes = 31

// BytesToFields packs b in big endian chunks of 31 bytes. An empty input
// packs to a single zero.
func BytesToFields(b []byte) []types.Fr {
	if len(b) == 0 {
		return []types.Fr{{}}
	}
	out := make([]types.Fr, 0, (len(b)+fieldChunkBytes-1)/fieldChunkBytes)
	for i := 0; i < len(b); i += fieldChunkBytes {
		chunk := b[i:min(i+fieldChunkBytes, len(b))]
		out = append(out, types.FrReduce(new(big.Int).SetBytes(chunk)))
	}
	return out
}

// Sha256ToField hashes the canonical encodings of the inputs with sha256 and
// reduces the digest into the field. It is used for the leaves of the L1 to
// L2 message tree, computed on L1 with sha256.
func Sha256ToField(inputs ...types.Fr) types.Fr {
	h := sha256.New()
	for _, in := range inputs {
		b := in.Bytes()
		h.Write(b[:])
	}
	return types.FrReduce(new(big.Int).SetBytes(h.Sum(nil)))
}

// NoteCommitment is the inner commitment of a note, computed by contracts.
func (h *Hasher) NoteCommitment(fields ...types.Fr) (types.Fr, error) {
	return h.Hash(Commitment, fields...)
}

// SiloCommitment binds an inner commitment to the contract that emitted it.
func (h *Hasher) SiloCommitment(contract types.AztecAddress, inner types.Fr) (types.Fr, error) {
	return h.Hash(SiloedCommitment, contract.Fr, inner)
}

// CommitmentNonce is the nonce making the index-th commitment of a
// transaction unique.
func (h *Hasher) CommitmentNonce(txHash types.Fr, index uint64) (types.Fr, error) {
	return h.Hash(CommitmentNonce, txHash, types.NewFr(index))
}

// UniqueCommitment is the leaf inserted in the private data tree.
func (h *Hasher) UniqueCommitment(nonce, siloed types.Fr) (types.Fr, error) {
	return h.Hash(UniqueCommitment, nonce, siloed)
}

// NoteNullifier is the inner nullifier of a note, computed by contracts.
func (h *Hasher) NoteNullifier(fields ...types.Fr) (types.Fr, error) {
	return h.Hash(Nullifier, fields...)
}

// InitialisationNullifier is emitted once by a contract when it is
// initialised, so a second initialisation is rejected.
func (h *Hasher) InitialisationNullifier(contract types.AztecAddress) (types.Fr, error) {
	return h.Hash(InitialisationNullifier, contract.Fr)
}

// SiloNullifier binds an inner nullifier to the contract that emitted it. The
// result is the leaf inserted in the nullifier tree.
func (h *Hasher) SiloNullifier(contract types.AztecAddress, inner types.Fr) (types.Fr, error) {
	return h.Hash(OuterNullifier, contract.Fr, inner)
}

// PublicLeafIndex maps a contract storage slot to its public data tree key.
func (h *Hasher) PublicLeafIndex(contract types.AztecAddress, slot types.Fr) (types.Fr, error) {
	return h.Hash(PublicLeafIndex, contract.Fr, slot)
}

// PublicDataLeaf commits to a public data tree entry.
func (h *Hasher) PublicDataLeaf(index, value types.Fr) (types.Fr, error) {
	return h.Hash(PublicDataLeaf, index, value)
}

// PublicDataRead hashes a public state read.
func (h *Hasher) PublicDataRead(index, value types.Fr) (types.Fr, error) {
	return h.Hash(PublicDataRead, index, value)
}

// PublicDataUpdateRequest hashes a public state write.
func (h *Hasher) PublicDataUpdateRequest(index, oldValue, newValue types.Fr) (types.Fr, error) {
	return h.Hash(PublicDataUpdateRequest, index, oldValue, newValue)
}

// FunctionData hashes the identity of a function.
func (h *Hasher) FunctionData(selector types.Selector, isPrivate, isConstructor bool) (types.Fr, error) {
	return h.Hash(FunctionData, selector.Fr(), types.FrFromBool(isPrivate), types.FrFromBool(isConstructor))
}

// FunctionLeaf is the leaf of a function in the contract function tree.
func (h *Hasher) FunctionLeaf(selector types.Selector, isPrivate bool, vkHash, acirHash types.Fr) (types.Fr, error) {
	return h.Hash(FunctionLeaf, selector.Fr(), types.FrFromBool(isPrivate), vkHash, acirHash)
}

// VKHash hashes a serialized verification key.
func (h *Hasher) VKHash(vk []byte) (types.Fr, error) {
	return h.Hash(VK, BytesToFields(vk)...)
}

// ArgsHash hashes the arguments of a function call. Calls without
// arguments hash to zero.
func (h *Hasher) ArgsHash(args []types.Fr) (types.Fr, error) {
	if len(args) == 0 {
		return types.Fr{}, nil
	}
	return h.Hash(FunctionArgs, args...)
}

// ConstructorArgsHash hashes the arguments of a constructor. Constructors
// without arguments hash to zero.
func (h *Hasher) ConstructorArgsHash(args []types.Fr) (types.Fr, error) {
	if len(args) == 0 {
		return types.Fr{}, nil
	}
	return h.Hash(ConstructorArgs, args...)
}

// ConstructorHash binds the constructor function, its arguments and its
// verification key.
func (h *Hasher) ConstructorHash(functionDataHash, argsHash, vkHash types.Fr) (types.Fr, error) {
	return h.Hash(Constructor, functionDataHash, argsHash, vkHash)
}

// PartialContractAddress hashes the deployment data not bound to the
// deployer key.
func (h *Hasher) PartialContractAddress(salt, functionTreeRoot, constructorHash types.Fr, portal types.EthAddress) (types.Fr, error) {
	return h.Hash(PartialContractAddress, salt, functionTreeRoot, constructorHash, types.EthAddressToFr(portal))
}

// ContractAddress derives an address from the deployer public key and the
// partial address.
func (h *Hasher) ContractAddress(pub types.Point, partial types.Fr) (types.AztecAddress, error) {
	f, err := h.Hash(ContractAddress, pub.X, pub.Y, partial)
	if err != nil {
		return types.AztecAddress{}, err
	}
	return types.AztecAddress{Fr: f}, nil
}

// ContractLeaf is the leaf of a contract in the contract tree.
func (h *Hasher) ContractLeaf(address types.AztecAddress, portal types.EthAddress, functionTreeRoot types.Fr) (types.Fr, error) {
	return h.Hash(ContractLeaf, address.Fr, types.EthAddressToFr(portal), functionTreeRoot)
}

// CallStackItem hashes a call stack entry. Private and public entries use
// distinct tags.
func (h *Hasher) CallStackItem(public bool, contract types.AztecAddress, functionDataHash, callContextHash, argsHash types.Fr) (types.Fr, error) {
	tag := CallStackItem
	if public {
		tag = CallStackItem2
	}
	return h.Hash(tag, contract.Fr, functionDataHash, callContextHash, argsHash)
}

// KernelOutput digests the accumulated side effects of a transaction, one
// digest for the private phase and one for the public phase.
func (h *Hasher) KernelOutput(public bool, fields ...types.Fr) (types.Fr, error) {
	tag := PrivateCircuitPublicInputs
	if public {
		tag = PublicCircuitPublicInputs
	}
	return h.Hash(tag, fields...)
}

// L1ToL2SecretHash hashes the secret that consumes an L1 to L2 message.
func (h *Hasher) L1ToL2SecretHash(secret types.Fr) (types.Fr, error) {
	return h.Hash(L1ToL2MessageSecret, secret)
}

// L2ToL1Message hashes a message sent by an L2 contract to its portal.
func (h *Hasher) L2ToL1Message(sender types.AztecAddress, portal types.EthAddress, chainID, content types.Fr) (types.Fr, error) {
	return h.Hash(L2ToL1Msg, sender.Fr, types.EthAddressToFr(portal), chainID, content)
}

// SignedTxRequest binds a transaction hash to the signature of its origin.
func (h *Hasher) SignedTxRequest(txHash types.Fr, signature ...types.Fr) (types.Fr, error) {
	return h.Hash(SignedTxRequest, append([]types.Fr{txHash}, signature...)...)
}

// MappingSlot derives the storage slot of key inside the mapping stored at
// base.
func (h *Hasher) MappingSlot(base, key types.Fr) (types.Fr, error) {
	return h.SlotHash(MappingSlot, base, key)
}
