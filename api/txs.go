package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/aztecrpc"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// callArgs decodes a TxRequest body and parses its arguments against the
// ABI of the target contract.
func (a *API) callArgs(w http.ResponseWriter, r *http.Request) (*TxRequest, []abi.Value, bool) {
	req := &TxRequest{}
	if !decodeBody(w, r, req) {
		return nil, nil, false
	}
	def, err := a.client.ContractAbi(r.Context(), req.To)
	if err != nil {
		writeClientError(w, err)
		return nil, nil, false
	}
	fn, err := def.Function(req.FunctionName)
	if err != nil {
		writeClientError(w, err)
		return nil, nil, false
	}
	args, err := abi.ParseArgs(fn, req.Args)
	if err != nil {
		writeClientError(w, err)
		return nil, nil, false
	}
	return req, args, true
}

// createTx assembles and seals a function call.
// POST /txs
func (a *API) createTx(w http.ResponseWriter, r *http.Request) {
	req, args, ok := a.callArgs(w, r)
	if !ok {
		return
	}
	t, err := a.client.CreateTx(r.Context(), req.FunctionName, args, req.To, aztecrpc.TxOptions{From: req.From})
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, t)
}

// viewTx simulates a function call and returns its return values.
// POST /txs/view
func (a *API) viewTx(w http.ResponseWriter, r *http.Request) {
	req, args, ok := a.callArgs(w, r)
	if !ok {
		return
	}
	values, err := a.client.ViewTx(r.Context(), req.FunctionName, args, req.To, aztecrpc.TxOptions{From: req.From})
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &ViewResponse{ReturnValues: values})
}

// sendTx submits a sealed tx to the node.
// POST /txs/send
func (a *API) sendTx(w http.ResponseWriter, r *http.Request) {
	t := &tx.Tx{}
	if !decodeBody(w, r, t) {
		return
	}
	hash, err := a.client.SendTx(r.Context(), t)
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &SendTxResponse{TxHash: hash})
}

// txReceipt returns the receipt of a tx.
// GET /txs/{txHash}/receipt
func (a *API) txReceipt(w http.ResponseWriter, r *http.Request) {
	hash, err := types.TxHashFromHex(chi.URLParam(r, TxHashURLParam))
	if err != nil {
		ErrMalformedTxHash.WithErr(err).Write(w)
		return
	}
	receipt, err := a.client.GetTxReceipt(r.Context(), hash)
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, receipt)
}

// storageAt reads a public storage slot.
// GET /storage/{address}/{slot}
func (a *API) storageAt(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	slot, err := types.FrFromHex(chi.URLParam(r, SlotURLParam))
	if err != nil {
		ErrMalformedParam.Withf("invalid storage slot: %v", err).Write(w)
		return
	}
	value, err := a.client.GetStorageAt(r.Context(), address, slot)
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &StorageResponse{Value: value})
}
