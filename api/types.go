package api

import (
	"encoding/json"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/aztecrpc"
	"github.com/vocdoni/aztec-rpc/crypto/keys"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// AccountsResponse lists the local accounts.
type AccountsResponse struct {
	Accounts []types.AztecAddress `json:"accounts"`
}

// CreateAccountRequest is the body of the account creation endpoint. Every
// field is optional.
type CreateAccountRequest struct {
	PrivateKey types.HexBytes   `json:"privateKey,omitempty"`
	Curve      keys.Curve       `json:"curve,omitempty"`
	Signer     keys.SignerType  `json:"signer,omitempty"`
	Salt       *types.Fr        `json:"salt,omitempty"`
	Abi        *abi.ContractAbi `json:"abi,omitempty"`
}

// CreateAccountResponse is returned by the account creation endpoint.
type CreateAccountResponse struct {
	TxHash  types.TxHash       `json:"txHash"`
	Address types.AztecAddress `json:"address"`
}

// RegisterAccountRequest is the body of the account registration endpoint.
type RegisterAccountRequest struct {
	PrivateKey     types.HexBytes     `json:"privateKey"`
	Address        types.AztecAddress `json:"address"`
	PartialAddress types.Fr           `json:"partialAddress"`
	Curve          keys.Curve         `json:"curve,omitempty"`
	Signer         keys.SignerType    `json:"signer,omitempty"`
	Abi            *abi.ContractAbi   `json:"abi,omitempty"`
}

// RegisterAccountResponse holds the address of a registered account.
type RegisterAccountResponse struct {
	Address types.AztecAddress `json:"address"`
}

// DeployedResponse tells whether a contract is in the contract tree.
type DeployedResponse struct {
	Address  types.AztecAddress `json:"address"`
	Deployed bool               `json:"deployed"`
}

// DeployRequest is the body of the deployment endpoint. Args holds one JSON
// value per constructor parameter.
type DeployRequest struct {
	Abi            *abi.ContractAbi   `json:"abi"`
	Args           []json.RawMessage  `json:"args"`
	PortalContract types.EthAddress   `json:"portalContract"`
	Salt           *types.Fr          `json:"salt,omitempty"`
	From           types.AztecAddress `json:"from"`
}

// DeployResponse is returned by the deployment endpoint.
type DeployResponse struct {
	Tx              *tx.Tx             `json:"tx"`
	ContractAddress types.AztecAddress `json:"contractAddress"`
}

// TxRequest is the body of the tx creation and view endpoints. Args holds
// one JSON value per function parameter.
type TxRequest struct {
	FunctionName string             `json:"functionName"`
	Args         []json.RawMessage  `json:"args"`
	To           types.AztecAddress `json:"to"`
	From         types.AztecAddress `json:"from"`
}

// ViewResponse holds the return values of a simulated call.
type ViewResponse struct {
	ReturnValues []abi.Value `json:"returnValues"`
}

// SendTxResponse is returned by the tx submission endpoint.
type SendTxResponse struct {
	TxHash types.TxHash `json:"txHash"`
}

// StorageResponse holds the value of a public storage slot.
type StorageResponse struct {
	Value types.Fr `json:"value"`
}

// ContractsRequest is the body of the contract registration endpoint.
type ContractsRequest struct {
	Contracts []aztecrpc.DeployedContract `json:"contracts"`
}
