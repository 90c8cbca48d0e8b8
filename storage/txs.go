package storage

import (
	"github.com/vocdoni/aztec-rpc/types"
)

// SentTx records a tx submitted to the node.
type SentTx struct {
	Hash            types.TxHash        `json:"hash"                      cbor:"0,keyasint"`
	SentAt          int64               `json:"sentAt"                    cbor:"1,keyasint"`
	Origin          types.AztecAddress  `json:"origin"                    cbor:"2,keyasint"`
	ContractAddress *types.AztecAddress `json:"contractAddress,omitempty" cbor:"3,keyasint,omitempty"`
}

func txKey(hash types.TxHash) []byte {
	b := hash.Bytes()
	return b[:]
}

// MarkTxSent records a sent tx. It returns ErrKeyAlreadyExists if the hash
// was recorded before.
func (s *Storage) MarkTxSent(tx *SentTx) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.setArtifact(sentTxPrefix, txKey(tx.Hash), tx, false)
}

// UnmarkTxSent removes the record of a tx.
func (s *Storage) UnmarkTxSent(hash types.TxHash) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.deleteArtifact(sentTxPrefix, txKey(hash))
}

// SentTx returns the record of a sent tx, or ErrNotFound.
func (s *Storage) SentTx(hash types.TxHash) (*SentTx, error) {
	key := txKey(hash)
	if tx, ok := cachedArtifact[SentTx](s, sentTxPrefix, key); ok {
		return tx, nil
	}
	tx := &SentTx{}
	if err := s.getArtifact(sentTxPrefix, key, tx); err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey(sentTxPrefix, key), tx)
	return tx, nil
}
