package keys

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/vocdoni/aztec-rpc/types"
)

type babyJubJubKey struct {
	priv babyjub.PrivateKey
	pub  types.Point
}

func newBabyJubJubKey(raw []byte) *babyJubJubKey {
	k := &babyJubJubKey{}
	copy(k.priv[:], raw)
	pub := k.priv.Public()
	// babyjub points are always reduced coordinates of the BN254 scalar field
	k.pub = types.Point{X: types.FrReduce(pub.X), Y: types.FrReduce(pub.Y)}
	return k
}

func (k *babyJubJubKey) Curve() Curve           { return BabyJubJub }
func (k *babyJubJubKey) Signer() SignerType     { return EdDSAPoseidon }
func (k *babyJubJubKey) PublicKey() types.Point { return k.pub }

func (k *babyJubJubKey) Sign(msg types.Fr) (*Signature, error) {
	sig := k.priv.SignPoseidon(msg.BigInt())
	s, err := types.FrFromBig(sig.S)
	if err != nil {
		return nil, fmt.Errorf("invalid signature scalar: %w", err)
	}
	return &Signature{
		R: types.Point{X: types.FrReduce(sig.R8.X), Y: types.FrReduce(sig.R8.Y)},
		S: s,
	}, nil
}

type babyJubJubVerifier struct{}

func (babyJubJubVerifier) Verify(pub types.Point, msg types.Fr, sig *Signature) (bool, error) {
	if sig == nil {
		return false, nil
	}
	pk := &babyjub.PublicKey{X: pub.X.BigInt(), Y: pub.Y.BigInt()}
	if !(*babyjub.Point)(pk).InCurve() {
		return false, fmt.Errorf("public key %s is not on babyjubjub", pub)
	}
	s := &babyjub.Signature{
		R8: &babyjub.Point{X: sig.R.X.BigInt(), Y: sig.R.Y.BigInt()},
		S:  new(big.Int).Set(sig.S.BigInt()),
	}
	return pk.VerifyPoseidon(msg.BigInt(), s), nil
}
