package keys

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/vocdoni/aztec-rpc/types"
)

type bn254Key struct {
	priv *eddsa.PrivateKey
	pub  types.Point
}

func newBN254Key(raw []byte) (*bn254Key, error) {
	priv, err := eddsa.GenerateKey(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("error generating private key: %w", err)
	}
	return &bn254Key{
		priv: priv,
		pub:  types.Point{X: types.FrFromElement(priv.PublicKey.A.X), Y: types.FrFromElement(priv.PublicKey.A.Y)},
	}, nil
}

func (k *bn254Key) Curve() Curve           { return BN254 }
func (k *bn254Key) Signer() SignerType     { return EdDSAMiMC }
func (k *bn254Key) PublicKey() types.Point { return k.pub }

func (k *bn254Key) Sign(msg types.Fr) (*Signature, error) {
	b := msg.Bytes()
	raw, err := k.priv.Sign(b[:], mimc.NewMiMC())
	if err != nil {
		return nil, fmt.Errorf("error signing message: %w", err)
	}
	var sig eddsa.Signature
	if _, err := sig.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("error decoding signature: %w", err)
	}
	s, err := types.FrFromBytes(sig.S[:])
	if err != nil {
		return nil, fmt.Errorf("invalid signature scalar: %w", err)
	}
	return &Signature{
		R: types.Point{X: types.FrFromElement(sig.R.X), Y: types.FrFromElement(sig.R.Y)},
		S: s,
	}, nil
}

type bn254Verifier struct{}

func (bn254Verifier) Verify(pub types.Point, msg types.Fr, sig *Signature) (bool, error) {
	if sig == nil {
		return false, nil
	}
	var pk eddsa.PublicKey
	pk.A = twistededwards.PointAffine{X: pub.X.Element(), Y: pub.Y.Element()}
	if !pk.A.IsOnCurve() {
		return false, fmt.Errorf("public key %s is not on the bn254 twisted edwards curve", pub)
	}
	var s eddsa.Signature
	s.R = twistededwards.PointAffine{X: sig.R.X.Element(), Y: sig.R.Y.Element()}
	sb := sig.S.Bytes()
	copy(s.S[:], sb[:])
	b := msg.Bytes()
	return pk.Verify(s.Bytes(), b[:], mimc.NewMiMC())
}
