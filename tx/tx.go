package tx

import (
	"fmt"

	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/crypto/keys"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/types"
)

// TxSignature is the signature of the origin account over the tx hash.
type TxSignature struct {
	Curve      keys.Curve      `json:"curve" cbor:"1,keyasint"`
	Signer     keys.SignerType `json:"signer" cbor:"2,keyasint"`
	PublicKey  types.Point     `json:"publicKey" cbor:"3,keyasint"`
	Signature  keys.Signature  `json:"signature" cbor:"4,keyasint"`
	SignedHash types.Fr        `json:"signedTxRequestHash" cbor:"5,keyasint"`
}

// Tx is a sealed transaction, ready to be sent. Its content must not be
// changed; Verify detects any change made after sealing.
type Tx struct {
	Hash               types.TxHash    `json:"hash" cbor:"1,keyasint"`
	Request            TxRequest       `json:"request" cbor:"2,keyasint"`
	Data               AccumulatedData `json:"data" cbor:"3,keyasint"`
	PrivateEffectsHash types.Fr        `json:"privateEffectsHash" cbor:"4,keyasint"`
	PublicEffectsHash  types.Fr        `json:"publicEffectsHash" cbor:"5,keyasint"`
	HistoricRoots      merkle.Roots    `json:"historicRoots" cbor:"6,keyasint"`
	ReturnValues       []types.Fr      `json:"returnValues" cbor:"7,keyasint"`
	Signature          *TxSignature    `json:"signature,omitempty" cbor:"8,keyasint,omitempty"`
}

// ContractAddress returns the contract created by the tx, if any.
func (t *Tx) ContractAddress() (types.AztecAddress, bool) {
	if len(t.Data.NewContracts) == 0 {
		return types.AztecAddress{}, false
	}
	return t.Data.NewContracts[0].ContractAddress, true
}

// Sign signs the tx hash with the origin account key.
func (t *Tx) Sign(h *domain.Hasher, key keys.Key) error {
	if h == nil {
		h = domain.Default
	}
	if t.Signature != nil {
		return fmt.Errorf("%w: tx %s is already signed", ErrInvalidTx, t.Hash)
	}
	sig, err := key.Sign(t.Hash.Fr)
	if err != nil {
		return fmt.Errorf("error signing tx %s: %w", t.Hash, err)
	}
	signed, err := h.SignedTxRequest(t.Hash.Fr, sig.Fields()...)
	if err != nil {
		return err
	}
	t.Signature = &TxSignature{
		Curve:      key.Curve(),
		Signer:     key.Signer(),
		PublicKey:  key.PublicKey(),
		Signature:  *sig,
		SignedHash: signed,
	}
	return nil
}

// Verify recomputes the hash, the limits and the effect digests of the tx,
// and checks the signature when there is one.
func (t *Tx) Verify(h *domain.Hasher) error {
	if h == nil {
		h = domain.Default
	}
	hash, err := t.Request.Hash(h)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	if !hash.Equal(t.Hash.Fr) {
		return fmt.Errorf("%w: hash is %s, request hashes to %s", ErrInvalidTx, t.Hash, hash)
	}
	if err := t.Data.checkLimits(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	if len(t.ReturnValues) > types.ReturnValuesLength {
		return fmt.Errorf("%w: %d return values", ErrInvalidTx, len(t.ReturnValues))
	}
	priv, err := t.Data.PrivateEffectsHash(h)
	if err != nil {
		return err
	}
	if !priv.Equal(t.PrivateEffectsHash) {
		return fmt.Errorf("%w: private effects do not match their digest", ErrInvalidTx)
	}
	pub, err := t.Data.PublicEffectsHash(h)
	if err != nil {
		return err
	}
	if !pub.Equal(t.PublicEffectsHash) {
		return fmt.Errorf("%w: public effects do not match their digest", ErrInvalidTx)
	}
	if t.Signature == nil {
		return nil
	}
	v, err := keys.VerifierFor(t.Signature.Curve, t.Signature.Signer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	ok, err := v.Verify(t.Signature.PublicKey, t.Hash.Fr, &t.Signature.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	if !ok {
		return fmt.Errorf("%w: bad signature", ErrInvalidTx)
	}
	signed, err := h.SignedTxRequest(t.Hash.Fr, t.Signature.Signature.Fields()...)
	if err != nil {
		return err
	}
	if !signed.Equal(t.Signature.SignedHash) {
		return fmt.Errorf("%w: signed request hash mismatch", ErrInvalidTx)
	}
	return nil
}
