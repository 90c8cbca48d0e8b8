package tx

import (
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
)

// ContractAddress derives the address of the contract created by a
// deployment tx running constructor fd with args. It also returns the
// partial address, which does not depend on the deployer key.
func ContractAddress(h *domain.Hasher, fd FunctionData, args []types.Fr, d ContractDeploymentData) (types.AztecAddress, types.Fr, error) {
	fdHash, err := fd.Hash(h)
	if err != nil {
		return types.AztecAddress{}, types.Fr{}, err
	}
	argsHash, err := h.ConstructorArgsHash(args)
	if err != nil {
		return types.AztecAddress{}, types.Fr{}, err
	}
	ctor, err := h.ConstructorHash(fdHash, argsHash, d.ConstructorVKHash)
	if err != nil {
		return types.AztecAddress{}, types.Fr{}, err
	}
	partial, err := h.PartialContractAddress(d.ContractAddressSalt, d.FunctionTreeRoot, ctor, d.PortalContractAddress)
	if err != nil {
		return types.AztecAddress{}, types.Fr{}, err
	}
	addr, err := h.ContractAddress(d.DeployerPublicKey, partial)
	if err != nil {
		return types.AztecAddress{}, types.Fr{}, err
	}
	return addr, partial, nil
}
