package api

import (
	"net/http"

	"github.com/vocdoni/aztec-rpc/aztecrpc"
)

// accounts lists the local accounts.
// GET /accounts
func (a *API) accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.client.GetAccounts(r.Context())
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &AccountsResponse{Accounts: accounts})
}

// createAccount deploys a new account contract and registers the account.
// POST /accounts
func (a *API) createAccount(w http.ResponseWriter, r *http.Request) {
	req := &CreateAccountRequest{}
	if r.ContentLength != 0 {
		if !decodeBody(w, r, req) {
			return
		}
	}
	hash, address, err := a.client.CreateSmartAccount(r.Context(), aztecrpc.CreateAccountOptions{
		AccountOptions: aztecrpc.AccountOptions{Curve: req.Curve, Signer: req.Signer, Abi: req.Abi},
		PrivateKey:     req.PrivateKey,
		Salt:           req.Salt,
	})
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &CreateAccountResponse{TxHash: hash, Address: address})
}

// registerAccount registers an account deployed elsewhere.
// POST /accounts/register
func (a *API) registerAccount(w http.ResponseWriter, r *http.Request) {
	req := &RegisterAccountRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if len(req.PrivateKey) == 0 {
		ErrInvalidKey.With("missing private key").Write(w)
		return
	}
	opts := aztecrpc.AccountOptions{Curve: req.Curve, Signer: req.Signer, Abi: req.Abi}
	address, err := a.client.RegisterSmartAccount(r.Context(), req.PrivateKey, req.Address, req.PartialAddress, opts)
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &RegisterAccountResponse{Address: address})
}

// accountPublicKey returns the signing public key of a local account.
// GET /accounts/{address}/publicKey
func (a *API) accountPublicKey(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	pub, err := a.client.GetAccountPublicKey(r.Context(), address)
	if err != nil {
		writeClientError(w, err)
		return
	}
	httpWriteJSON(w, &pub)
}
