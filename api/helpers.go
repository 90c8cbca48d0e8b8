package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/accumulator"
	"github.com/vocdoni/aztec-rpc/aztecrpc"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/node"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// clientErrors maps the errors of the client to API errors. The first match
// wins, so more specific errors go first.
var clientErrors = []struct {
	err error
	api Error
}{
	{aztecrpc.ErrUnknownAccount, ErrUnknownAccount},
	{aztecrpc.ErrInvalidKey, ErrInvalidKey},
	{aztecrpc.ErrAddressMismatch, ErrAddressMismatch},
	{aztecrpc.ErrContractNotFound, ErrContractNotFound},
	{aztecrpc.ErrTxAlreadySent, ErrTxAlreadySent},
	{abi.ErrInvalidAbi, ErrInvalidContractAbi},
	{abi.ErrFunctionNotFound, ErrFunctionNotFound},
	{abi.ErrArgumentMismatch, ErrInvalidArguments},
	{accumulator.ErrCapacityExceeded, ErrCapacityExceeded},
	{node.ErrTxNotFound, ErrTxNotFound},
	{node.ErrTxRejected, ErrTxRejected},
	{tx.ErrRejected, ErrTxRejected},
	{tx.ErrInvalidTx, ErrTxRejected},
	{tx.ErrInvalidRequest, ErrTxRejected},
}

// writeClientError writes err, returned by the client, as the matching API
// error.
func writeClientError(w http.ResponseWriter, err error) {
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			ce.api.WithErr(err).Write(w)
			return
		}
	}
	log.Warnw("api request failed", "error", err.Error())
	ErrGenericInternalServerError.WithErr(err).Write(w)
}

// decodeBody decodes the JSON body of r into out, writing the error when it
// fails.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return false
	}
	return true
}

// addressParam parses the address URL parameter, writing the error when it
// is malformed.
func addressParam(w http.ResponseWriter, r *http.Request) (types.AztecAddress, bool) {
	addr, err := types.AztecAddressFromHex(chi.URLParam(r, AddressURLParam))
	if err != nil {
		ErrMalformedAddress.WithErr(err).Write(w)
		return types.AztecAddress{}, false
	}
	return addr, true
}
