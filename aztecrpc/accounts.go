package aztecrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/keys"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/simulator"
	"github.com/vocdoni/aztec-rpc/storage"
	"github.com/vocdoni/aztec-rpc/types"
)

// AccountOptions select the account contract and signature scheme of an
// account. The zero value selects the SchnorrAccount contract and the
// BabyJubJub curve.
type AccountOptions struct {
	Curve  keys.Curve
	Signer keys.SignerType
	Abi    *abi.ContractAbi
}

func (o AccountOptions) abi() *abi.ContractAbi {
	if o.Abi != nil {
		return o.Abi
	}
	return simulator.SchnorrAccountAbi()
}

// CreateAccountOptions configure CreateSmartAccount.
type CreateAccountOptions struct {
	AccountOptions
	// PrivateKey is generated when empty.
	PrivateKey []byte
	// Salt of the account contract address; random when nil.
	Salt *types.Fr
}

// CreateSmartAccount deploys a new account contract whose constructor takes
// the signing public key, sends the deployment tx and registers the account
// once the node accepted it. It returns the tx hash and the address of the
// account.
func (c *Client) CreateSmartAccount(ctx context.Context, opts CreateAccountOptions) (types.TxHash, types.AztecAddress, error) {
	var key keys.Key
	priv := opts.PrivateKey
	var err error
	if len(priv) == 0 {
		key, priv, err = keys.Random(opts.Curve, opts.Signer)
	} else {
		key, err = keys.New(opts.Curve, opts.Signer, priv)
	}
	if err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	def := opts.abi()
	pub := key.PublicKey()
	d, err := c.newDeployment(def, []abi.Value{abi.FieldOf(pub.X), abi.FieldOf(pub.Y)},
		types.EthAddress{}, opts.Salt, pub)
	if err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	// the account deploys itself
	t, err := c.assembleDeployment(ctx, d, d.address)
	if err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	if err := t.Sign(c.hasher, key); err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	hash, err := c.SendTx(ctx, t)
	if err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	// nothing is stored for deployments the node refused
	if err := c.saveDeployment(def, d); err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	account := &storage.Account{
		Address:        d.address,
		PartialAddress: d.partial,
		PublicKey:      pub,
		Curve:          key.Curve(),
		Signer:         key.Signer(),
		PrivateKey:     priv,
		ContractName:   def.Name,
		CreatedAt:      time.Now().UnixNano(),
	}
	if err := c.storage.SetAccount(account); err != nil {
		return types.TxHash{}, types.AztecAddress{}, err
	}
	log.Infow("account created", "address", d.address.String(), "tx", hash.String())
	return hash, d.address, nil
}

// RegisterSmartAccount registers an account deployed elsewhere and returns
// its address. The address derives from the public key of privKey and
// partialAddress; a zero address is filled in, any other must match.
func (c *Client) RegisterSmartAccount(_ context.Context, privKey []byte, address types.AztecAddress,
	partialAddress types.Fr, opts AccountOptions,
) (types.AztecAddress, error) {
	key, err := keys.New(opts.Curve, opts.Signer, privKey)
	if err != nil {
		return types.AztecAddress{}, err
	}
	derived, err := c.hasher.ContractAddress(key.PublicKey(), partialAddress)
	if err != nil {
		return types.AztecAddress{}, err
	}
	if address.IsZero() {
		address = derived
	}
	if derived != address {
		return types.AztecAddress{}, fmt.Errorf("%w: %s derives %s", ErrAddressMismatch, address, derived)
	}
	def := opts.abi()
	if err := c.storage.AddContract(&storage.Contract{
		Address:        address,
		Abi:            def,
		PartialAddress: &partialAddress,
		AddedAt:        time.Now().UnixNano(),
	}); err != nil && !errors.Is(err, storage.ErrKeyAlreadyExists) {
		return types.AztecAddress{}, err
	}
	if err := c.storage.SetAccount(&storage.Account{
		Address:        address,
		PartialAddress: partialAddress,
		PublicKey:      key.PublicKey(),
		Curve:          key.Curve(),
		Signer:         key.Signer(),
		PrivateKey:     append(types.HexBytes(nil), privKey...),
		ContractName:   def.Name,
		CreatedAt:      time.Now().UnixNano(),
	}); err != nil {
		return types.AztecAddress{}, err
	}
	log.Infow("account registered", "address", address.String())
	return address, nil
}

// GetAccounts returns the addresses of the local accounts in creation
// order.
func (c *Client) GetAccounts(context.Context) ([]types.AztecAddress, error) {
	accounts, err := c.storage.Accounts()
	if err != nil {
		return nil, err
	}
	addrs := make([]types.AztecAddress, len(accounts))
	for i, a := range accounts {
		addrs[i] = a.Address
	}
	return addrs, nil
}

// GetAccountPublicKey returns the signing public key of a local account.
func (c *Client) GetAccountPublicKey(_ context.Context, address types.AztecAddress) (types.Point, error) {
	a, err := c.account(address)
	if err != nil {
		return types.Point{}, err
	}
	return a.PublicKey, nil
}

func (c *Client) account(address types.AztecAddress) (*storage.Account, error) {
	a, err := c.storage.Account(address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, address)
	}
	return a, err
}

// origin returns the account sending a tx: from when set, the first local
// account otherwise. The account is nil when from is not local.
func (c *Client) origin(from types.AztecAddress) (*storage.Account, types.AztecAddress, error) {
	if !from.IsZero() {
		a, err := c.account(from)
		if errors.Is(err, ErrUnknownAccount) {
			return nil, from, nil
		}
		return a, from, err
	}
	accounts, err := c.storage.Accounts()
	if err != nil {
		return nil, types.AztecAddress{}, err
	}
	if len(accounts) == 0 {
		return nil, types.AztecAddress{}, fmt.Errorf("%w: no local accounts", ErrUnknownAccount)
	}
	return accounts[0], accounts[0].Address, nil
}
