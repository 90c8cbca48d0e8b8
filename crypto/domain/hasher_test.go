package domain

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aztec-rpc/types"
)

// recorder is a primitive that remembers its last input.
type recorder struct {
	last []*big.Int
}

func (r *recorder) Hash(inputs []*big.Int) (*big.Int, error) {
	r.last = inputs
	sum := new(big.Int)
	for i, in := range inputs {
		sum.Add(sum, new(big.Int).Mul(in, big.NewInt(int64(i+1))))
	}
	return sum.Mod(sum, types.Modulus()), nil
}

func fields(n int) []types.Fr {
	out := make([]types.Fr, n)
	for i := range out {
		out[i] = types.NewFr(uint64(100 + i))
	}
	return out
}

func TestGeneratorValues(t *testing.T) {
	c := qt.New(t)

	c.Assert(len(Generators()), qt.Equals, 32)
	c.Assert(uint32(TxRequest), qt.Equals, uint32(33))
	c.Assert(uint32(FunctionArgs), qt.Equals, uint32(44))
	c.Assert(FunctionArgs.String(), qt.Equals, "FUNCTION_ARGS")
	c.Assert(GeneratorIndex(28).Valid(), qt.IsFalse)
	c.Assert(GeneratorIndex(28).String(), qt.Equals, "GeneratorIndex(28)")
	c.Assert(uint32(MappingSlotPlaceholder), qt.Equals, uint32(2))
	c.Assert(uint32(NoteIsDummy), qt.Equals, uint32(7))
	c.Assert(uint32(Whole), qt.Equals, uint32(2))
}

func TestTagIsLeadingInput(t *testing.T) {
	c := qt.New(t)
	r := &recorder{}
	h := New(r)

	_, err := h.Hash(SiloedCommitment, types.NewFr(1), types.NewFr(2))
	c.Assert(err, qt.IsNil)
	c.Assert(r.last, qt.HasLen, 3)
	c.Assert(r.last[0].Uint64(), qt.Equals, uint64(SiloedCommitment))
	c.Assert(r.last[1].Uint64(), qt.Equals, uint64(1))

	_, err = h.SlotHash(MappingSlot, types.NewFr(1))
	c.Assert(err, qt.IsNil)
	c.Assert(r.last[0].Sign(), qt.Equals, 0)
	c.Assert(r.last[1].Uint64(), qt.Equals, uint64(MappingSlot))

	_, err = h.HashPair(types.NewFr(1), types.NewFr(2))
	c.Assert(err, qt.IsNil)
	c.Assert(r.last, qt.HasLen, 3)
	c.Assert(r.last[0].Cmp(NodePrefix), qt.Equals, 0)
	c.Assert(r.last[2].Uint64(), qt.Equals, uint64(2))
}

func TestDomainSeparation(t *testing.T) {
	c := qt.New(t)

	seen := map[types.Fr]GeneratorIndex{}
	for _, tag := range Generators() {
		n := tag.Arity()
		if n == 0 {
			n = 2
		}
		digest, err := Default.Hash(tag, fields(n)...)
		c.Assert(err, qt.IsNil, qt.Commentf("tag %s", tag))
		prev, dup := seen[digest]
		c.Assert(dup, qt.IsFalse, qt.Commentf("%s collides with %s", tag, prev))
		seen[digest] = tag
	}

	// same raw inputs, different artifacts
	contract := types.AztecAddress{Fr: types.NewFr(5)}
	inner := types.NewFr(9)
	siloedCommitment, err := Default.SiloCommitment(contract, inner)
	c.Assert(err, qt.IsNil)
	siloedNullifier, err := Default.SiloNullifier(contract, inner)
	c.Assert(err, qt.IsNil)
	leafIndex, err := Default.PublicLeafIndex(contract, inner)
	c.Assert(err, qt.IsNil)
	c.Assert(siloedCommitment, qt.Not(qt.Equals), siloedNullifier)
	c.Assert(siloedCommitment, qt.Not(qt.Equals), leafIndex)

	// storage slots never collide with protocol artifacts
	slot, err := Default.MappingSlot(types.NewFr(100), types.NewFr(101))
	c.Assert(err, qt.IsNil)
	commitment, err := Default.Hash(Commitment, types.NewFr(100), types.NewFr(101))
	c.Assert(err, qt.IsNil)
	c.Assert(slot, qt.Not(qt.Equals), commitment)

	// merkle nodes never collide with tagged artifacts nor storage slots
	x := types.NewFr(77)
	node, err := Default.HashPair(types.NewFr(uint64(Commitment)), x)
	c.Assert(err, qt.IsNil)
	commitment, err = Default.Hash(Commitment, x)
	c.Assert(err, qt.IsNil)
	c.Assert(node, qt.Not(qt.Equals), commitment)
	node, err = Default.HashPair(types.NewFr(uint64(MappingSlot)), x)
	c.Assert(err, qt.IsNil)
	slot, err = Default.SlotHash(MappingSlot, x)
	c.Assert(err, qt.IsNil)
	c.Assert(node, qt.Not(qt.Equals), slot)
	c.Assert(NodePrefix.Cmp(new(big.Int).SetUint64(uint64(^uint32(0)))), qt.Equals, 1)
}

func TestMalformedInputs(t *testing.T) {
	c := qt.New(t)

	_, err := Default.Hash(Commitment)
	c.Assert(err, qt.ErrorIs, ErrMalformedHashInput)
	_, err = Default.Hash(CallContext, fields(5)...)
	c.Assert(err, qt.ErrorIs, ErrMalformedHashInput)
	_, err = Default.Hash(ContractDeploymentData, fields(7)...)
	c.Assert(err, qt.ErrorIs, ErrMalformedHashInput)
	_, err = Default.Hash(GeneratorIndex(99), fields(1)...)
	c.Assert(err, qt.ErrorIs, ErrMalformedHashInput)
	_, err = Default.SlotHash(BaseSlot)
	c.Assert(err, qt.ErrorIs, ErrMalformedHashInput)

	_, err = Default.Hash(CallContext, fields(6)...)
	c.Assert(err, qt.IsNil)
}

func TestDeterminism(t *testing.T) {
	c := qt.New(t)

	a, err := Default.Hash(FunctionArgs, fields(20)...)
	c.Assert(err, qt.IsNil)
	b, err := Default.ArgsHash(fields(20))
	c.Assert(err, qt.IsNil)
	c.Assert(a, qt.Equals, b)

	zero, err := Default.ArgsHash(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(zero.IsZero(), qt.IsTrue)

	ca, err := Default.ConstructorArgsHash(fields(3))
	c.Assert(err, qt.IsNil)
	fa, err := Default.ArgsHash(fields(3))
	c.Assert(err, qt.IsNil)
	c.Assert(ca, qt.Not(qt.Equals), fa)
}

func TestBytesToFields(t *testing.T) {
	c := qt.New(t)

	c.Assert(BytesToFields(nil), qt.HasLen, 1)
	c.Assert(BytesToFields(make([]byte, 62)), qt.HasLen, 2)
	c.Assert(BytesToFields(make([]byte, 63)), qt.HasLen, 3)
	got := BytesToFields([]byte{0x01, 0x02})
	c.Assert(got[0], qt.Equals, types.NewFr(0x0102))

	leaf := Sha256ToField(fields(8)...)
	c.Assert(leaf, qt.Equals, Sha256ToField(fields(8)...))
	c.Assert(leaf, qt.Not(qt.Equals), Sha256ToField(fields(7)...))
}
