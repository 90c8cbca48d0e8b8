//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If there is a gap in the list, don't fill it in: that code was used in the past and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound   = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody      = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam     = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrMalformedAddress   = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrUnknownAccount     = Error{Code: 40023, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("unknown account")}
	ErrInvalidKey         = Error{Code: 40024, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid private key")}
	ErrAddressMismatch    = Error{Code: 40025, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("address does not match the derived address")}
	ErrContractNotFound   = Error{Code: 40026, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("contract not found")}
	ErrFunctionNotFound   = Error{Code: 40027, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("function not found")}
	ErrInvalidArguments   = Error{Code: 40028, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid function arguments")}
	ErrCapacityExceeded   = Error{Code: 40029, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("tx capacity exceeded")}
	ErrTxRejected         = Error{Code: 40030, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("tx rejected")}
	ErrTxAlreadySent      = Error{Code: 40031, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("tx already sent")}
	ErrTxNotFound         = Error{Code: 40032, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("tx not found")}
	ErrMalformedTxHash    = Error{Code: 40033, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed tx hash")}
	ErrInvalidContractAbi = Error{Code: 40034, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid contract abi")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
