// Package keys holds the account keys of the client. Each supported curve
// comes with one signature scheme over field element messages.
package keys

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/vocdoni/aztec-rpc/types"
)

// PrivateKeySize is the size of a raw private key.
const PrivateKeySize = 32

var (
	// ErrInvalidKey is returned for private keys that are not 32 non zero
	// bytes.
	ErrInvalidKey = errors.New("invalid private key")
	// ErrUnsupported is returned for unknown curve and signer combinations.
	ErrUnsupported = errors.New("unsupported curve or signer")
)

// Curve is the embedded curve of an account key.
type Curve string

const (
	// BabyJubJub is the iden3 Baby Jubjub curve.
	BabyJubJub Curve = "babyjubjub"
	// BN254 is the gnark-crypto twisted Edwards curve embedded in BN254.
	BN254 Curve = "bn254"
)

// SignerType is the signature scheme of an account key.
type SignerType string

const (
	// EdDSAPoseidon is EdDSA with Poseidon as message hash, over BabyJubJub.
	EdDSAPoseidon SignerType = "eddsa-poseidon"
	// EdDSAMiMC is EdDSA with MiMC as message hash, over BN254.
	EdDSAMiMC SignerType = "eddsa-mimc"
)

// DefaultSigner returns the signer used when only the curve is given.
func DefaultSigner(c Curve) SignerType {
	if c == BN254 {
		return EdDSAMiMC
	}
	return EdDSAPoseidon
}

// Signature is an EdDSA signature in field element form.
type Signature struct {
	R types.Point `json:"r" cbor:"1,keyasint"`
	S types.Fr    `json:"s" cbor:"2,keyasint"`
}

// Fields returns the signature as the field elements bound by signed tx
// requests.
func (s Signature) Fields() []types.Fr {
	return []types.Fr{s.R.X, s.R.Y, s.S}
}

// Key is an account private key.
type Key interface {
	Curve() Curve
	Signer() SignerType
	PublicKey() types.Point
	Sign(msg types.Fr) (*Signature, error)
}

// Verifier checks signatures made by keys of one curve and signer.
type Verifier interface {
	Verify(pub types.Point, msg types.Fr, sig *Signature) (bool, error)
}

// New builds a key from raw bytes. The zero values of curve and signer
// select BabyJubJub and its default signer.
func New(curve Curve, signer SignerType, priv []byte) (Key, error) {
	if len(priv) != PrivateKeySize || isZero(priv) {
		return nil, fmt.Errorf("%w: expected %d non zero bytes, got %d", ErrInvalidKey, PrivateKeySize, len(priv))
	}
	if curve == "" {
		curve = BabyJubJub
	}
	if signer == "" {
		signer = DefaultSigner(curve)
	}
	switch {
	case curve == BabyJubJub && signer == EdDSAPoseidon:
		return newBabyJubJubKey(priv), nil
	case curve == BN254 && signer == EdDSAMiMC:
		return newBN254Key(priv)
	default:
		return nil, fmt.Errorf("%w: %s with %s", ErrUnsupported, curve, signer)
	}
}

// Random generates a fresh key.
func Random(curve Curve, signer SignerType) (Key, []byte, error) {
	priv := make([]byte, PrivateKeySize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("could not read random key: %w", err)
	}
	k, err := New(curve, signer, priv)
	if err != nil {
		return nil, nil, err
	}
	return k, priv, nil
}

// VerifierFor returns the verifier of a curve and signer.
func VerifierFor(curve Curve, signer SignerType) (Verifier, error) {
	if curve == "" {
		curve = BabyJubJub
	}
	if signer == "" {
		signer = DefaultSigner(curve)
	}
	switch {
	case curve == BabyJubJub && signer == EdDSAPoseidon:
		return babyJubJubVerifier{}, nil
	case curve == BN254 && signer == EdDSAMiMC:
		return bn254Verifier{}, nil
	default:
		return nil, fmt.Errorf("%w: %s with %s", ErrUnsupported, curve, signer)
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
