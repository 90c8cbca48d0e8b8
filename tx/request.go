// Package tx assembles rollup transactions: it runs the calls of a
// transaction through an Executor, accumulates their side effects under the
// protocol capacity limits and seals the result into an immutable Tx.
package tx

import (
	"fmt"

	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
)

// FunctionData identifies the function run by a call.
type FunctionData struct {
	Selector      types.Selector `json:"selector" cbor:"1,keyasint"`
	IsPrivate     bool           `json:"isPrivate" cbor:"2,keyasint"`
	IsConstructor bool           `json:"isConstructor" cbor:"3,keyasint"`
}

// Hash returns the FUNCTION_DATA hash.
func (f FunctionData) Hash(h *domain.Hasher) (types.Fr, error) {
	return h.FunctionData(f.Selector, f.IsPrivate, f.IsConstructor)
}

// CallContext is the context a call runs in.
type CallContext struct {
	MsgSender              types.AztecAddress `json:"msgSender" cbor:"1,keyasint"`
	StorageContractAddress types.AztecAddress `json:"storageContractAddress" cbor:"2,keyasint"`
	PortalContractAddress  types.EthAddress   `json:"portalContractAddress" cbor:"3,keyasint"`
	IsDelegateCall         bool               `json:"isDelegateCall" cbor:"4,keyasint"`
	IsStaticCall           bool               `json:"isStaticCall" cbor:"5,keyasint"`
	IsContractDeployment   bool               `json:"isContractDeployment" cbor:"6,keyasint"`
}

// Fields returns the CallContextLength fields of the context.
func (c CallContext) Fields() []types.Fr {
	return []types.Fr{
		c.MsgSender.Fr,
		c.StorageContractAddress.Fr,
		types.EthAddressToFr(c.PortalContractAddress),
		types.FrFromBool(c.IsDelegateCall),
		types.FrFromBool(c.IsStaticCall),
		types.FrFromBool(c.IsContractDeployment),
	}
}

// Hash returns the CALL_CONTEXT hash.
func (c CallContext) Hash(h *domain.Hasher) (types.Fr, error) {
	return h.Hash(domain.CallContext, c.Fields()...)
}

// ContractDeploymentData describes the contract created by a deployment
// transaction.
type ContractDeploymentData struct {
	DeployerPublicKey     types.Point      `json:"deployerPublicKey" cbor:"1,keyasint"`
	ConstructorVKHash     types.Fr         `json:"constructorVkHash" cbor:"2,keyasint"`
	FunctionTreeRoot      types.Fr         `json:"functionTreeRoot" cbor:"3,keyasint"`
	ContractAddressSalt   types.Fr         `json:"contractAddressSalt" cbor:"4,keyasint"`
	PortalContractAddress types.EthAddress `json:"portalContractAddress" cbor:"5,keyasint"`
}

// Fields returns the ContractDeploymentDataLength fields of the data.
func (d ContractDeploymentData) Fields() []types.Fr {
	return []types.Fr{
		d.DeployerPublicKey.X,
		d.DeployerPublicKey.Y,
		d.ConstructorVKHash,
		d.FunctionTreeRoot,
		d.ContractAddressSalt,
		types.EthAddressToFr(d.PortalContractAddress),
	}
}

// Hash returns the CONTRACT_DEPLOYMENT_DATA hash.
func (d ContractDeploymentData) Hash(h *domain.Hasher) (types.Fr, error) {
	return h.Hash(domain.ContractDeploymentData, d.Fields()...)
}

// TxContext holds the transaction wide flags and chain parameters.
type TxContext struct {
	IsFeePaymentTx         bool                   `json:"isFeePaymentTx" cbor:"1,keyasint"`
	IsRebatePaymentTx      bool                   `json:"isRebatePaymentTx" cbor:"2,keyasint"`
	IsContractDeploymentTx bool                   `json:"isContractDeploymentTx" cbor:"3,keyasint"`
	ContractDeploymentData ContractDeploymentData `json:"contractDeploymentData" cbor:"4,keyasint"`
	ChainID                types.Fr               `json:"chainId" cbor:"5,keyasint"`
	Version                types.Fr               `json:"version" cbor:"6,keyasint"`
}

// Hash returns the TX_CONTEXT hash.
func (c TxContext) Hash(h *domain.Hasher) (types.Fr, error) {
	dd, err := c.ContractDeploymentData.Hash(h)
	if err != nil {
		return types.Fr{}, err
	}
	return h.Hash(domain.TxContext,
		types.FrFromBool(c.IsFeePaymentTx),
		types.FrFromBool(c.IsRebatePaymentTx),
		types.FrFromBool(c.IsContractDeploymentTx),
		dd, c.ChainID, c.Version)
}

// TxRequest is what the origin account authorises: the entry function, its
// encoded arguments and the transaction context.
type TxRequest struct {
	Origin       types.AztecAddress `json:"origin" cbor:"1,keyasint"`
	FunctionData FunctionData       `json:"functionData" cbor:"2,keyasint"`
	Args         []types.Fr         `json:"args" cbor:"3,keyasint"`
	Nonce        types.Fr           `json:"nonce" cbor:"4,keyasint"`
	TxContext    TxContext          `json:"txContext" cbor:"5,keyasint"`
}

// Hash returns the TX_REQUEST hash, which is the transaction hash.
func (r *TxRequest) Hash(h *domain.Hasher) (types.TxHash, error) {
	if len(r.Args) > types.ArgsLength {
		return types.TxHash{}, fmt.Errorf("%w: %d arguments, at most %d", ErrInvalidRequest, len(r.Args), types.ArgsLength)
	}
	fd, err := r.FunctionData.Hash(h)
	if err != nil {
		return types.TxHash{}, err
	}
	args, err := h.ArgsHash(r.Args)
	if err != nil {
		return types.TxHash{}, err
	}
	ctx, err := r.TxContext.Hash(h)
	if err != nil {
		return types.TxHash{}, err
	}
	f, err := h.Hash(domain.TxRequest, r.Origin.Fr, fd, args, ctx, r.Nonce)
	if err != nil {
		return types.TxHash{}, err
	}
	return types.TxHash{Fr: f}, nil
}

// FunctionCall is a call to a contract function.
type FunctionCall struct {
	Contract     types.AztecAddress `json:"contract" cbor:"1,keyasint"`
	FunctionData FunctionData       `json:"functionData" cbor:"2,keyasint"`
	Args         []types.Fr         `json:"args" cbor:"3,keyasint"`
	CallContext  CallContext        `json:"callContext" cbor:"4,keyasint"`
}

// StackItem returns the hash of the call as an entry of its parent call
// stack.
func (c *FunctionCall) StackItem(h *domain.Hasher) (types.Fr, error) {
	fd, err := c.FunctionData.Hash(h)
	if err != nil {
		return types.Fr{}, err
	}
	cc, err := c.CallContext.Hash(h)
	if err != nil {
		return types.Fr{}, err
	}
	args, err := h.ArgsHash(c.Args)
	if err != nil {
		return types.Fr{}, err
	}
	return h.CallStackItem(!c.FunctionData.IsPrivate, c.Contract, fd, cc, args)
}
