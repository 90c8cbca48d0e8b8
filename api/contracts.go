package api

import (
	"net/http"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/aztecrpc"
)

// addContracts registers deployed contracts in the client.
// POST /contracts
func (a *API) addContracts(w http.ResponseWriter, r *http.Request) {
	req := &ContractsRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if err := a.client.AddContracts(r.Context(), req.Contracts); err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteOK(w)
}

// contractDeployed tells whether a contract is in the contract tree.
// GET /contracts/{address}/deployed
func (a *API) contractDeployed(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	deployed, err := a.client.IsContractDeployed(r.Context(), address)
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &DeployedResponse{Address: address, Deployed: deployed})
}

// deploy creates a deployment tx. The tx is returned to be sent with the
// send endpoint.
// POST /contracts/deploy
func (a *API) deploy(w http.ResponseWriter, r *http.Request) {
	req := &DeployRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if req.Abi == nil {
		ErrInvalidContractAbi.With("missing abi").Write(w)
		return
	}
	if err := req.Abi.Validate(); err != nil {
		writeClientError(w, err)
		return
	}
	ctor, ok := req.Abi.Constructor()
	if !ok {
		ErrFunctionNotFound.Withf("%s has no constructor", req.Abi.Name).Write(w)
		return
	}
	args, err := abi.ParseArgs(ctor, req.Args)
	if err != nil {
		writeClientError(w, err)
		return
	}
	t, address, err := a.client.CreateDeploymentTx(r.Context(), req.Abi, args, req.PortalContract,
		aztecrpc.DeployOptions{Salt: req.Salt, From: req.From})
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &DeployResponse{Tx: t, ContractAddress: address})
}
