package storage

import (
	"fmt"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/types"
)

// Contract is a contract the client can call.
type Contract struct {
	Address types.AztecAddress `json:"address"`
	Portal  types.EthAddress   `json:"portalContract"`
	Abi     *abi.ContractAbi   `json:"abi"`
	// PartialAddress is known for contracts deployed by this client.
	PartialAddress *types.Fr `json:"partialAddress,omitempty"`
	AddedAt        int64     `json:"addedAt"`
}

// AddContract stores a contract. Contracts keep the ABI as JSON, the format
// ABI artifacts are published in. It returns ErrKeyAlreadyExists if the
// address is already known.
func (s *Storage) AddContract(c *Contract) error {
	if c == nil || c.Abi == nil {
		return fmt.Errorf("contract without abi")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.setArtifact(contractPrefix, addressKey(c.Address), c, false, ArtifactEncodingJSON)
}

// Contract returns the contract at address, or ErrNotFound.
func (s *Storage) Contract(address types.AztecAddress) (*Contract, error) {
	key := addressKey(address)
	if c, ok := cachedArtifact[Contract](s, contractPrefix, key); ok {
		return c, nil
	}
	c := &Contract{}
	if err := s.getArtifact(contractPrefix, key, c, ArtifactEncodingJSON); err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey(contractPrefix, key), c)
	return c, nil
}

// Contracts returns the addresses of every known contract.
func (s *Storage) Contracts() ([]types.AztecAddress, error) {
	var addrs []types.AztecAddress
	if err := s.iterateArtifacts(contractPrefix, func(key, _ []byte) error {
		f, err := types.FrFromBytes(key)
		if err != nil {
			return fmt.Errorf("invalid contract key %x: %w", key, err)
		}
		addrs = append(addrs, types.AztecAddress{Fr: f})
		return nil
	}); err != nil {
		return nil, err
	}
	return addrs, nil
}
