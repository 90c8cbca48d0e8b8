package aztecrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/storage"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// DeployedContract is a contract the client can call.
type DeployedContract struct {
	Address types.AztecAddress `json:"address"`
	Portal  types.EthAddress   `json:"portalContract"`
	Abi     *abi.ContractAbi   `json:"abi"`
}

// DeployOptions configure CreateDeploymentTx.
type DeployOptions struct {
	// Salt of the contract address; random when nil.
	Salt *types.Fr
	// From is the deploying account; the first local account when zero.
	From types.AztecAddress
}

// AddContracts registers contracts. Adding an address twice is a no-op.
func (c *Client) AddContracts(_ context.Context, contracts []DeployedContract) error {
	for _, dc := range contracts {
		if dc.Abi == nil {
			return fmt.Errorf("%w: contract %s without abi", abi.ErrInvalidAbi, dc.Address)
		}
		if err := dc.Abi.Validate(); err != nil {
			return err
		}
		err := c.storage.AddContract(&storage.Contract{
			Address: dc.Address,
			Portal:  dc.Portal,
			Abi:     dc.Abi,
			AddedAt: time.Now().UnixNano(),
		})
		switch {
		case errors.Is(err, storage.ErrKeyAlreadyExists):
			log.Debugw("contract already known", "address", dc.Address.String())
		case err != nil:
			return err
		default:
			log.Infow("contract added", "address", dc.Address.String(), "name", dc.Abi.Name)
		}
	}
	return nil
}

// IsContractDeployed reports whether the contract tree holds address.
func (c *Client) IsContractDeployed(_ context.Context, address types.AztecAddress) (bool, error) {
	return c.forest.IsContractDeployed(address)
}

// deployment is a constructor call with the data its address derives from.
type deployment struct {
	call    tx.FunctionCall
	data    tx.ContractDeploymentData
	address types.AztecAddress
	partial types.Fr
	portal  types.EthAddress
	abi     *abi.ContractAbi
}

func (c *Client) newDeployment(def *abi.ContractAbi, args []abi.Value, portal types.EthAddress,
	salt *types.Fr, deployer types.Point,
) (*deployment, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := def.Constructor()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no constructor", abi.ErrFunctionNotFound, def.Name)
	}
	fields, err := abi.EncodeArgs(ctor, args)
	if err != nil {
		return nil, err
	}
	d := &deployment{portal: portal, abi: def}
	if salt != nil {
		d.data.ContractAddressSalt = *salt
	} else if d.data.ContractAddressSalt, err = randomFr(); err != nil {
		return nil, err
	}
	if d.data.FunctionTreeRoot, err = abi.FunctionTreeRoot(c.hasher, def); err != nil {
		return nil, err
	}
	if d.data.ConstructorVKHash, err = c.hasher.VKHash(ctor.VerificationKey); err != nil {
		return nil, fmt.Errorf("constructor of %s: %w", def.Name, err)
	}
	d.data.DeployerPublicKey = deployer
	d.data.PortalContractAddress = portal
	fd := tx.FunctionData{Selector: ctor.Selector(), IsPrivate: ctor.IsPrivate(), IsConstructor: true}
	if d.address, d.partial, err = tx.ContractAddress(c.hasher, fd, fields, d.data); err != nil {
		return nil, err
	}
	d.call = tx.FunctionCall{
		Contract:     d.address,
		FunctionData: fd,
		Args:         fields,
		CallContext:  tx.CallContext{PortalContractAddress: portal},
	}
	return d, nil
}

func (c *Client) assembleDeployment(ctx context.Context, d *deployment, origin types.AztecAddress) (*tx.Tx, error) {
	req, err := c.request(origin, d.call)
	if err != nil {
		return nil, err
	}
	req.TxContext.IsContractDeploymentTx = true
	req.TxContext.ContractDeploymentData = d.data
	return c.assemble(ctx, req, d.call, map[types.AztecAddress]*abi.ContractAbi{d.address: d.abi})
}

func (c *Client) saveDeployment(def *abi.ContractAbi, d *deployment) error {
	partial := d.partial
	err := c.storage.AddContract(&storage.Contract{
		Address:        d.address,
		Portal:         d.portal,
		Abi:            def,
		PartialAddress: &partial,
		AddedAt:        time.Now().UnixNano(),
	})
	if errors.Is(err, storage.ErrKeyAlreadyExists) {
		return nil
	}
	return err
}

// CreateDeploymentTx assembles the deployment of a contract by its
// constructor and returns the signed tx and the address of the contract.
// The contract is registered in the client.
func (c *Client) CreateDeploymentTx(ctx context.Context, def *abi.ContractAbi, args []abi.Value,
	portal types.EthAddress, opts DeployOptions,
) (*tx.Tx, types.AztecAddress, error) {
	if def == nil {
		return nil, types.AztecAddress{}, fmt.Errorf("%w: nil abi", abi.ErrInvalidAbi)
	}
	account, origin, err := c.origin(opts.From)
	if err != nil {
		return nil, types.AztecAddress{}, err
	}
	if account == nil {
		return nil, types.AztecAddress{}, fmt.Errorf("%w: deployer %s", ErrUnknownAccount, origin)
	}
	d, err := c.newDeployment(def, args, portal, opts.Salt, account.PublicKey)
	if err != nil {
		return nil, types.AztecAddress{}, err
	}
	t, err := c.assembleDeployment(ctx, d, origin)
	if err != nil {
		return nil, types.AztecAddress{}, err
	}
	if err := c.sign(t, account); err != nil {
		return nil, types.AztecAddress{}, err
	}
	if err := c.saveDeployment(def, d); err != nil {
		return nil, types.AztecAddress{}, err
	}
	log.Infow("deployment tx created", "contract", def.Name, "address", d.address.String(), "tx", t.Hash.String())
	return t, d.address, nil
}
