package aztecrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/node"
	"github.com/vocdoni/aztec-rpc/storage"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// TxOptions configure CreateTx and ViewTx.
type TxOptions struct {
	// From is the sender; the first local account when zero.
	From types.AztecAddress
}

// deployed fails with ErrContractNotFound unless the contract tree holds
// address.
func (c *Client) deployed(address types.AztecAddress) error {
	ok, err := c.forest.IsContractDeployed(address)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not deployed", ErrContractNotFound, address)
	}
	return nil
}

// call resolves a function of a known, deployed contract and encodes its
// arguments.
func (c *Client) call(functionName string, args []abi.Value, to types.AztecAddress) (*abi.Function, tx.FunctionCall, error) {
	contract, err := c.contract(to)
	if err != nil {
		return nil, tx.FunctionCall{}, err
	}
	if err := c.deployed(to); err != nil {
		return nil, tx.FunctionCall{}, err
	}
	fn, err := contract.Abi.Function(functionName)
	if err != nil {
		return nil, tx.FunctionCall{}, fmt.Errorf("%s: %w", contract.Abi.Name, err)
	}
	fields, err := abi.EncodeArgs(fn, args)
	if err != nil {
		return nil, tx.FunctionCall{}, err
	}
	return fn, tx.FunctionCall{
		Contract: to,
		FunctionData: tx.FunctionData{
			Selector:      fn.Selector(),
			IsPrivate:     fn.IsPrivate(),
			IsConstructor: fn.IsConstructor,
		},
		Args:        fields,
		CallContext: tx.CallContext{PortalContractAddress: contract.Portal},
	}, nil
}

func (c *Client) request(origin types.AztecAddress, call tx.FunctionCall) (*tx.TxRequest, error) {
	nonce, err := randomFr()
	if err != nil {
		return nil, err
	}
	return &tx.TxRequest{
		Origin:       origin,
		FunctionData: call.FunctionData,
		Args:         call.Args,
		Nonce:        nonce,
		TxContext:    tx.TxContext{ChainID: c.chainID, Version: c.version},
	}, nil
}

func (c *Client) assemble(ctx context.Context, req *tx.TxRequest, call tx.FunctionCall,
	extra map[types.AztecAddress]*abi.ContractAbi,
) (*tx.Tx, error) {
	roots, err := c.forest.Roots()
	if err != nil {
		return nil, err
	}
	a, err := tx.NewAssembly(c.hasher, req, call, *roots)
	if err != nil {
		return nil, err
	}
	return tx.Assemble(ctx, a, c.simulator(extra), c.forest)
}

// sign signs t with the key of account. Txs of accounts that are not local
// are left unsigned.
func (c *Client) sign(t *tx.Tx, account *storage.Account) error {
	if account == nil {
		return nil
	}
	key, err := account.Key()
	if err != nil {
		return err
	}
	return t.Sign(c.hasher, key)
}

// CreateTx assembles and seals a call to functionName of the contract at
// to. The tx is signed when the sender is a local account.
func (c *Client) CreateTx(ctx context.Context, functionName string, args []abi.Value, to types.AztecAddress,
	opts TxOptions,
) (*tx.Tx, error) {
	account, origin, err := c.origin(opts.From)
	if err != nil {
		return nil, err
	}
	_, call, err := c.call(functionName, args, to)
	if err != nil {
		return nil, err
	}
	req, err := c.request(origin, call)
	if err != nil {
		return nil, err
	}
	t, err := c.assemble(ctx, req, call, nil)
	if err != nil {
		return nil, err
	}
	if err := c.sign(t, account); err != nil {
		return nil, err
	}
	log.Debugw("tx created", "hash", t.Hash.String(), "function", functionName, "contract", to.String())
	return t, nil
}

// ViewTx simulates a call to functionName of the contract at to and returns
// its decoded return values. Unconstrained functions run against the current
// public state; other functions run through a tx assembly that is never
// sealed. No tree is modified.
func (c *Client) ViewTx(ctx context.Context, functionName string, args []abi.Value, to types.AztecAddress,
	opts TxOptions,
) ([]abi.Value, error) {
	_, origin, err := c.origin(opts.From)
	if errors.Is(err, ErrUnknownAccount) && opts.From.IsZero() {
		// views do not need an account
		err = nil
	}
	if err != nil {
		return nil, err
	}
	fn, call, err := c.call(functionName, args, to)
	if err != nil {
		return nil, err
	}
	var values []types.Fr
	if fn.FunctionType == abi.Unconstrained {
		if values, err = c.simulator(nil).View(ctx, origin, call); err != nil {
			return nil, err
		}
	} else {
		req, err := c.request(origin, call)
		if err != nil {
			return nil, err
		}
		roots, err := c.forest.Roots()
		if err != nil {
			return nil, err
		}
		a, err := tx.NewAssembly(c.hasher, req, call, *roots)
		if err != nil {
			return nil, err
		}
		if err := a.Execute(ctx, c.simulator(nil)); err != nil {
			return nil, err
		}
		values = a.ReturnValues()
	}
	return abi.Decode(fn.ReturnTypes, values)
}

// SendTx submits a sealed tx to the node. A tx is submitted at most once.
func (c *Client) SendTx(ctx context.Context, t *tx.Tx) (types.TxHash, error) {
	if t == nil {
		return types.TxHash{}, fmt.Errorf("%w: nil tx", tx.ErrInvalidTx)
	}
	sent := &storage.SentTx{Hash: t.Hash, SentAt: time.Now().UnixNano(), Origin: t.Request.Origin}
	if addr, ok := t.ContractAddress(); ok {
		sent.ContractAddress = &addr
	}
	if err := c.storage.MarkTxSent(sent); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return types.TxHash{}, fmt.Errorf("%w: %s", ErrTxAlreadySent, t.Hash)
		}
		return types.TxHash{}, err
	}
	hash, err := c.node.SendTx(ctx, t)
	if err != nil {
		if uerr := c.storage.UnmarkTxSent(t.Hash); uerr != nil {
			log.Warnw("could not unmark tx", "hash", t.Hash.String(), "error", uerr.Error())
		}
		return types.TxHash{}, fmt.Errorf("could not send tx %s: %w", t.Hash, err)
	}
	log.Infow("tx sent", "hash", hash.String(), "origin", t.Request.Origin.String())
	return hash, nil
}

// GetTxReceipt returns the receipt of a tx from the node.
func (c *Client) GetTxReceipt(ctx context.Context, hash types.TxHash) (*node.TxReceipt, error) {
	return c.node.GetTxReceipt(ctx, hash)
}

// GetStorageAt reads a public storage slot of a deployed contract. The
// contract does not need to be registered in the client.
func (c *Client) GetStorageAt(_ context.Context, contract types.AztecAddress, slot types.Fr) (types.Fr, error) {
	if err := c.deployed(contract); err != nil {
		return types.Fr{}, err
	}
	index, err := c.hasher.PublicLeafIndex(contract, slot)
	if err != nil {
		return types.Fr{}, err
	}
	return c.forest.StorageAt(index)
}
