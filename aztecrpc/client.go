// Package aztecrpc is the RPC client of the privacy rollup. It keeps the
// local accounts and contracts, assembles txs against its merkle forest and
// submits them to a node.
package aztecrpc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/crypto/keys"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/node"
	"github.com/vocdoni/aztec-rpc/simulator"
	"github.com/vocdoni/aztec-rpc/storage"
	"github.com/vocdoni/aztec-rpc/types"
)

var (
	// ErrUnknownAccount is returned for addresses that are not local
	// accounts.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrAddressMismatch is returned when an address does not derive from
	// the key and partial address it is registered with.
	ErrAddressMismatch = errors.New("address does not match the derived address")
	// ErrContractNotFound is returned for contracts the client does not
	// know.
	ErrContractNotFound = simulator.ErrContractNotFound
	// ErrTxAlreadySent is returned when a tx is submitted twice.
	ErrTxAlreadySent = errors.New("tx already sent")
	// ErrInvalidKey is returned for malformed private keys.
	ErrInvalidKey = keys.ErrInvalidKey
)

// Config configures a Client.
type Config struct {
	ChainID types.Fr
	Version types.Fr
	// Registry holds the contract implementations. Nil selects the
	// built-in contracts.
	Registry *simulator.Registry
}

// Client is the RPC client. It is safe for concurrent use.
type Client struct {
	hasher   *domain.Hasher
	storage  *storage.Storage
	forest   *merkle.Forest
	node     node.Node
	registry *simulator.Registry
	chainID  types.Fr
	version  types.Fr
}

// New returns a client keeping its records in st, reading the rollup state
// from forest and submitting txs to n.
func New(st *storage.Storage, forest *merkle.Forest, n node.Node, cfg Config) *Client {
	registry := cfg.Registry
	if registry == nil {
		registry = simulator.Builtins()
	}
	return &Client{
		hasher:   forest.Hasher(),
		storage:  st,
		forest:   forest,
		node:     n,
		registry: registry,
		chainID:  cfg.ChainID,
		version:  cfg.Version,
	}
}

// Forest returns the merkle forest of the client.
func (c *Client) Forest() *merkle.Forest { return c.forest }

// resolver finds contract ABIs in the storage, plus the contracts being
// deployed by the tx under assembly.
type resolver struct {
	storage *storage.Storage
	extra   map[types.AztecAddress]*abi.ContractAbi
}

func (r *resolver) ContractAbi(_ context.Context, address types.AztecAddress) (*abi.ContractAbi, error) {
	if def, ok := r.extra[address]; ok {
		return def, nil
	}
	contract, err := r.storage.Contract(address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, address)
	}
	if err != nil {
		return nil, err
	}
	return contract.Abi, nil
}

// simulator returns an executor that also knows the given contracts.
func (c *Client) simulator(extra map[types.AztecAddress]*abi.ContractAbi) *simulator.Simulator {
	return simulator.New(c.hasher, &resolver{storage: c.storage, extra: extra}, c.forest, c.registry)
}

func (c *Client) contract(address types.AztecAddress) (*storage.Contract, error) {
	contract, err := c.storage.Contract(address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, address)
	}
	return contract, err
}

// ContractAbi returns the ABI of a known contract.
func (c *Client) ContractAbi(_ context.Context, address types.AztecAddress) (*abi.ContractAbi, error) {
	contract, err := c.contract(address)
	if err != nil {
		return nil, err
	}
	return contract.Abi, nil
}

func randomFr() (types.Fr, error) {
	b := make([]byte, types.FieldBytes)
	if _, err := rand.Read(b); err != nil {
		return types.Fr{}, fmt.Errorf("could not read random bytes: %w", err)
	}
	return types.FrReduce(new(big.Int).SetBytes(b)), nil
}
