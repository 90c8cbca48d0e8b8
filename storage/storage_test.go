package storage

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/keys"
	"github.com/vocdoni/aztec-rpc/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func testAbi() *abi.ContractAbi {
	return &abi.ContractAbi{
		Name: "Test",
		Functions: []abi.Function{{
			Name:            "constructor",
			FunctionType:    abi.Secret,
			IsConstructor:   true,
			Parameters:      []abi.Parameter{{Name: "owner", Type: abi.FieldType()}},
			Bytecode:        types.HexBytes{1, 2, 3},
			VerificationKey: types.HexBytes{4, 5, 6},
		}},
	}
}

func TestAccounts(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	_, err := st.Account(types.AztecAddress{Fr: types.NewFr(1)})
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	key, priv, err := keys.Random(keys.BabyJubJub, keys.EdDSAPoseidon)
	c.Assert(err, qt.IsNil)
	first := &Account{
		Address:        types.AztecAddress{Fr: types.NewFr(2)},
		PartialAddress: types.NewFr(3),
		PublicKey:      key.PublicKey(),
		Curve:          keys.BabyJubJub,
		Signer:         keys.EdDSAPoseidon,
		PrivateKey:     priv,
		ContractName:   "SchnorrAccount",
		CreatedAt:      20,
	}
	second := &Account{Address: types.AztecAddress{Fr: types.NewFr(1)}, CreatedAt: 10}
	c.Assert(st.SetAccount(first), qt.IsNil)
	c.Assert(st.SetAccount(second), qt.IsNil)

	got, err := st.Account(first.Address)
	c.Assert(err, qt.IsNil)
	c.Assert(got.PublicKey, qt.Equals, first.PublicKey)
	c.Assert(got.PartialAddress, qt.Equals, first.PartialAddress)
	c.Assert([]byte(got.PrivateKey), qt.DeepEquals, priv)

	restored, err := got.Key()
	c.Assert(err, qt.IsNil)
	c.Assert(restored.PublicKey(), qt.Equals, key.PublicKey())

	all, err := st.Accounts()
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 2)
	c.Assert(all[0].Address, qt.Equals, second.Address)
	c.Assert(all[1].Address, qt.Equals, first.Address)

	// overwriting drops the cached record
	first.ContractName = "Other"
	c.Assert(st.SetAccount(first), qt.IsNil)
	got, err = st.Account(first.Address)
	c.Assert(err, qt.IsNil)
	c.Assert(got.ContractName, qt.Equals, "Other")
}

func TestContracts(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	partial := types.NewFr(9)
	contract := &Contract{
		Address:        types.AztecAddress{Fr: types.NewFr(7)},
		Portal:         types.EthAddress{0xaa},
		Abi:            testAbi(),
		PartialAddress: &partial,
	}
	c.Assert(st.AddContract(contract), qt.IsNil)
	c.Assert(st.AddContract(contract), qt.ErrorIs, ErrKeyAlreadyExists)
	c.Assert(st.AddContract(&Contract{Address: contract.Address}), qt.IsNotNil)

	got, err := st.Contract(contract.Address)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Portal, qt.Equals, contract.Portal)
	c.Assert(*got.PartialAddress, qt.Equals, partial)
	c.Assert(got.Abi.Name, qt.Equals, "Test")
	ctor, ok := got.Abi.Constructor()
	c.Assert(ok, qt.IsTrue)
	c.Assert(ctor.Selector(), qt.Equals, testAbi().Functions[0].Selector())
	c.Assert(ctor.VerificationKey, qt.DeepEquals, types.HexBytes{4, 5, 6})

	addrs, err := st.Contracts()
	c.Assert(err, qt.IsNil)
	c.Assert(addrs, qt.DeepEquals, []types.AztecAddress{contract.Address})

	_, err = st.Contract(types.AztecAddress{Fr: types.NewFr(8)})
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestSentTxs(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	deployed := types.AztecAddress{Fr: types.NewFr(5)}
	sent := &SentTx{
		Hash:            types.TxHash{Fr: types.NewFr(1)},
		SentAt:          100,
		Origin:          types.AztecAddress{Fr: types.NewFr(2)},
		ContractAddress: &deployed,
	}
	c.Assert(st.MarkTxSent(sent), qt.IsNil)
	c.Assert(st.MarkTxSent(sent), qt.ErrorIs, ErrKeyAlreadyExists)

	got, err := st.SentTx(sent.Hash)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Origin, qt.Equals, sent.Origin)
	c.Assert(*got.ContractAddress, qt.Equals, deployed)

	c.Assert(st.UnmarkTxSent(sent.Hash), qt.IsNil)
	_, err = st.SentTx(sent.Hash)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(st.MarkTxSent(sent), qt.IsNil)
}

func TestForestDBIsolated(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	wTx := st.ForestDB().WriteTx()
	c.Assert(wTx.Set([]byte("a/key"), []byte("value")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	accounts, err := st.Accounts()
	c.Assert(err, qt.IsNil)
	c.Assert(accounts, qt.HasLen, 0)
}

func TestEncodeArtifact(t *testing.T) {
	c := qt.New(t)
	a := &SentTx{Hash: types.TxHash{Fr: types.NewFr(3)}, SentAt: 1}

	first, err := EncodeArtifact(a)
	c.Assert(err, qt.IsNil)
	second, err := EncodeArtifact(a)
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.DeepEquals, second)

	out := &SentTx{}
	c.Assert(DecodeArtifact(first, out), qt.IsNil)
	c.Assert(out.Hash, qt.Equals, a.Hash)

	data, err := EncodeArtifact(a, ArtifactEncodingJSON)
	c.Assert(err, qt.IsNil)
	out = &SentTx{}
	c.Assert(DecodeArtifact(data, out, ArtifactEncodingJSON), qt.IsNil)
	c.Assert(out.SentAt, qt.Equals, int64(1))

	_, err = EncodeArtifact(a, ArtifactEncoding(9))
	c.Assert(err, qt.IsNotNil)
}
