package storage

import (
	"fmt"
	"slices"

	"github.com/vocdoni/aztec-rpc/crypto/keys"
	"github.com/vocdoni/aztec-rpc/types"
)

// Account is a local account: the signing key of the account contract and
// the data its address was derived from.
type Account struct {
	Address        types.AztecAddress `json:"address"        cbor:"0,keyasint"`
	PartialAddress types.Fr           `json:"partialAddress" cbor:"1,keyasint"`
	PublicKey      types.Point        `json:"publicKey"      cbor:"2,keyasint"`
	Curve          keys.Curve         `json:"curve"          cbor:"3,keyasint"`
	Signer         keys.SignerType    `json:"signer"         cbor:"4,keyasint"`
	PrivateKey     types.HexBytes     `json:"-"              cbor:"5,keyasint"`
	// ContractName is the ABI name of the account contract.
	ContractName string `json:"contractName" cbor:"6,keyasint"`
	CreatedAt    int64  `json:"createdAt"    cbor:"7,keyasint"`
}

// Key returns the signing key of the account.
func (a *Account) Key() (keys.Key, error) {
	return keys.New(a.Curve, a.Signer, a.PrivateKey)
}

func addressKey(address types.AztecAddress) []byte {
	b := address.Bytes()
	return b[:]
}

// SetAccount stores an account, replacing the record with the same address.
func (s *Storage) SetAccount(a *Account) error {
	if a == nil {
		return fmt.Errorf("nil account")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.setArtifact(accountPrefix, addressKey(a.Address), a, true)
}

// Account returns the account at address, or ErrNotFound.
func (s *Storage) Account(address types.AztecAddress) (*Account, error) {
	key := addressKey(address)
	if a, ok := cachedArtifact[Account](s, accountPrefix, key); ok {
		return a, nil
	}
	a := &Account{}
	if err := s.getArtifact(accountPrefix, key, a); err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey(accountPrefix, key), a)
	return a, nil
}

// Accounts returns every local account in creation order.
func (s *Storage) Accounts() ([]*Account, error) {
	var accounts []*Account
	if err := s.iterateArtifacts(accountPrefix, func(_, value []byte) error {
		a := &Account{}
		if err := DecodeArtifact(value, a); err != nil {
			return fmt.Errorf("could not decode account: %w", err)
		}
		accounts = append(accounts, a)
		return nil
	}); err != nil {
		return nil, err
	}
	slices.SortStableFunc(accounts, func(a, b *Account) int {
		switch {
		case a.CreatedAt < b.CreatedAt:
			return -1
		case a.CreatedAt > b.CreatedAt:
			return 1
		}
		return 0
	})
	return accounts, nil
}
