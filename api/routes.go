package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// URL parameters
	AddressURLParam = "address" // URL parameter for account and contract addresses
	TxHashURLParam  = "txHash"  // URL parameter for tx hashes
	SlotURLParam    = "slot"    // URL parameter for storage slots

	// Account endpoints
	AccountsEndpoint         = "/accounts"                                               // GET: List accounts, POST: Create account
	RegisterAccountEndpoint  = AccountsEndpoint + "/register"                            // POST: Register an existing account
	AccountPublicKeyEndpoint = AccountsEndpoint + "/{" + AddressURLParam + "}/publicKey" // GET: Account signing public key

	// Contract endpoints
	ContractsEndpoint        = "/contracts"                                              // POST: Add contracts
	ContractDeployedEndpoint = ContractsEndpoint + "/{" + AddressURLParam + "}/deployed" // GET: Is the contract deployed
	DeployEndpoint           = ContractsEndpoint + "/deploy"                             // POST: Create a deployment tx

	// Tx endpoints
	TxsEndpoint       = "/txs"                                            // POST: Create a tx
	ViewTxEndpoint    = TxsEndpoint + "/view"                             // POST: Simulate a call
	SendTxEndpoint    = TxsEndpoint + "/send"                             // POST: Send a tx
	TxReceiptEndpoint = TxsEndpoint + "/{" + TxHashURLParam + "}/receipt" // GET: Tx receipt

	// Storage endpoints
	StorageEndpoint = "/storage/{" + AddressURLParam + "}/{" + SlotURLParam + "}" // GET: Public storage slot

	// Node endpoints
	NodeRPCEndpoint = "/node" // POST: JSON-RPC of the embedded node
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	// Always try to replace the placeholder, even if it's after the '?'
	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
}
