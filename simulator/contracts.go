package simulator

import (
	"github.com/holiman/uint256"
	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/types"
)

// Names of the built-in contracts.
const (
	SchnorrAccountName = "SchnorrAccount"
	CounterName        = "Counter"
	PrivateTokenName   = "PrivateToken"
)

// EntrypointArgs is the number of argument slots the account entrypoint
// forwards.
const EntrypointArgs = 12

var (
	signingKeyXSlot = types.NewFr(1)
	signingKeyYSlot = types.NewFr(2)
	signingKeyNote  = types.NewFr(3)

	counterValueSlot = types.NewFr(1)
	counterOwnerSlot = types.NewFr(2)

	balancesSlot = types.NewFr(1)
)

// Builtins returns a registry holding the built-in contracts.
func Builtins() *Registry {
	r := &Registry{contracts: make(map[string]*Contract)}
	for _, c := range []*Contract{SchnorrAccount(), Counter(), PrivateToken()} {
		r.contracts[c.Abi.Name] = c
	}
	return r
}

func param(name string, t abi.Type) abi.Parameter {
	return abi.Parameter{Name: name, Type: t}
}

func function(name string, ft abi.FunctionType, params []abi.Parameter, returns ...abi.Type) abi.Function {
	return abi.Function{Name: name, FunctionType: ft, Parameters: params, ReturnTypes: returns}
}

func constructor(params ...abi.Parameter) abi.Function {
	fn := function("constructor", abi.Secret, params)
	fn.IsConstructor = true
	return fn
}

// contractAbi derives placeholder bytecode and verification keys from the
// contract and function names, so every built-in function tree is distinct.
func contractAbi(name string, fns ...abi.Function) *abi.ContractAbi {
	c := &abi.ContractAbi{Name: name, Functions: fns}
	for i := range c.Functions {
		fn := &c.Functions[i]
		fn.Bytecode = types.HexBytes(name + "." + fn.Name)
		if fn.FunctionType != abi.Unconstrained {
			fn.VerificationKey = types.HexBytes("vk:" + name + "." + fn.Name)
		}
	}
	return c
}

func selectorOf(c *abi.ContractAbi, name string) (types.Selector, error) {
	fn, err := c.Function(name)
	if err != nil {
		return types.Selector{}, err
	}
	return fn.Selector(), nil
}

func frOfInt(i *uint256.Int) types.Fr {
	return types.FrReduce(i.ToBig())
}

func intOfFr(f types.Fr) *uint256.Int {
	i, _ := uint256.FromBig(f.BigInt())
	return i
}

// SchnorrAccountAbi is the ABI of the account contract.
func SchnorrAccountAbi() *abi.ContractAbi {
	return contractAbi(SchnorrAccountName,
		constructor(param("signing_pub_key_x", abi.FieldType()), param("signing_pub_key_y", abi.FieldType())),
		function("_store_signing_key", abi.Open,
			[]abi.Parameter{param("x", abi.FieldType()), param("y", abi.FieldType())}),
		function("entrypoint", abi.Secret, []abi.Parameter{
			param("to", abi.FieldType()),
			param("selector", abi.FieldType()),
			param("is_public", abi.BoolType()),
			param("argc", abi.IntegerType(8)),
			param("args", abi.ArrayType(abi.FieldType(), EntrypointArgs)),
		}),
		function("get_signing_key", abi.Unconstrained, nil, abi.FieldType(), abi.FieldType()),
	)
}

// SchnorrAccount is the account contract: it keeps the signing key of the
// account and forwards calls made on behalf of the account.
func SchnorrAccount() *Contract {
	def := SchnorrAccountAbi()
	return &Contract{
		Abi: def,
		Functions: map[string]Function{
			"constructor": func(e *Env) error {
				x, err := e.FieldArg("signing_pub_key_x")
				if err != nil {
					return err
				}
				y, err := e.FieldArg("signing_pub_key_y")
				if err != nil {
					return err
				}
				if _, err := e.NewNote(signingKeyNote, x, y); err != nil {
					return err
				}
				sel, err := selectorOf(def, "_store_signing_key")
				if err != nil {
					return err
				}
				return e.CallPublic(e.Address(), sel, x, y)
			},
			"_store_signing_key": func(e *Env) error {
				if err := e.Assert(e.MsgSender() == e.Address(), "only the account can store its key"); err != nil {
					return err
				}
				x, err := e.FieldArg("x")
				if err != nil {
					return err
				}
				y, err := e.FieldArg("y")
				if err != nil {
					return err
				}
				if err := e.WritePublic(signingKeyXSlot, x); err != nil {
					return err
				}
				return e.WritePublic(signingKeyYSlot, y)
			},
			"entrypoint": func(e *Env) error {
				if err := e.Assert(e.MsgSender() == e.Address(), "entrypoint called by %s", e.MsgSender()); err != nil {
					return err
				}
				to, err := e.AddressArg("to")
				if err != nil {
					return err
				}
				selField, err := e.FieldArg("selector")
				if err != nil {
					return err
				}
				sel, err := selectorFromFr(selField)
				if err != nil {
					return err
				}
				public, err := e.BoolArg("is_public")
				if err != nil {
					return err
				}
				argc, err := e.IntArg("argc")
				if err != nil {
					return err
				}
				if err := e.Assert(argc.IsUint64() && argc.Uint64() <= EntrypointArgs, "argc %s over %d", argc.Dec(), EntrypointArgs); err != nil {
					return err
				}
				array, err := e.ArrayArg("args")
				if err != nil {
					return err
				}
				args := make([]types.Fr, argc.Uint64())
				for i := range args {
					f, ok := array[i].(abi.Field)
					if !ok {
						return e.Assert(false, "argument %d is not a field", i)
					}
					args[i] = f.Fr
				}
				if public {
					return e.CallPublic(to, sel, args...)
				}
				return e.CallPrivate(to, sel, args...)
			},
			"get_signing_key": func(e *Env) error {
				x, err := e.ReadPublic(signingKeyXSlot)
				if err != nil {
					return err
				}
				y, err := e.ReadPublic(signingKeyYSlot)
				if err != nil {
					return err
				}
				return e.Return(abi.FieldOf(x), abi.FieldOf(y))
			},
		},
	}
}

func selectorFromFr(f types.Fr) (types.Selector, error) {
	b := f.Bytes()
	for _, c := range b[:len(b)-types.FunctionSelectorNumBytes] {
		if c != 0 {
			return types.Selector{}, assertion("selector %s does not fit in %d bytes", f, types.FunctionSelectorNumBytes)
		}
	}
	var s types.Selector
	copy(s[:], b[len(b)-types.FunctionSelectorNumBytes:])
	return s, nil
}

// CounterAbi is the ABI of the public counter contract.
func CounterAbi() *abi.ContractAbi {
	u64 := abi.IntegerType(64)
	return contractAbi(CounterName,
		constructor(param("initial", u64), param("owner", abi.FieldType())),
		function("initialize", abi.Open, []abi.Parameter{param("value", u64), param("owner", abi.FieldType())}),
		function("increment", abi.Open, []abi.Parameter{param("by", u64)}, u64),
		function("increment_twice", abi.Open, []abi.Parameter{param("by", u64)}),
		function("reset", abi.Open, nil),
		function("get_value", abi.Unconstrained, nil, u64),
		function("get_owner", abi.Unconstrained, nil, abi.FieldType()),
	)
}

// Counter is a counter kept in public storage.
func Counter() *Contract {
	def := CounterAbi()
	increment := func(e *Env, by *uint256.Int) (*uint256.Int, error) {
		v, err := e.ReadPublic(counterValueSlot)
		if err != nil {
			return nil, err
		}
		next, overflow := new(uint256.Int).AddOverflow(intOfFr(v), by)
		if err := e.Assert(!overflow && next.BitLen() <= 64, "counter overflow"); err != nil {
			return nil, err
		}
		return next, e.WritePublic(counterValueSlot, frOfInt(next))
	}
	return &Contract{
		Abi: def,
		Functions: map[string]Function{
			"constructor": func(e *Env) error {
				initial, err := e.IntArg("initial")
				if err != nil {
					return err
				}
				owner, err := e.FieldArg("owner")
				if err != nil {
					return err
				}
				sel, err := selectorOf(def, "initialize")
				if err != nil {
					return err
				}
				return e.CallPublic(e.Address(), sel, frOfInt(initial), owner)
			},
			"initialize": func(e *Env) error {
				if err := e.Assert(e.MsgSender() == e.Address(), "initialize called by %s", e.MsgSender()); err != nil {
					return err
				}
				value, err := e.IntArg("value")
				if err != nil {
					return err
				}
				owner, err := e.FieldArg("owner")
				if err != nil {
					return err
				}
				if err := e.WritePublic(counterValueSlot, frOfInt(value)); err != nil {
					return err
				}
				return e.WritePublic(counterOwnerSlot, owner)
			},
			"increment": func(e *Env) error {
				by, err := e.IntArg("by")
				if err != nil {
					return err
				}
				next, err := increment(e, by)
				if err != nil {
					return err
				}
				return e.Return(abi.Integer{Int: next})
			},
			"increment_twice": func(e *Env) error {
				by, err := e.IntArg("by")
				if err != nil {
					return err
				}
				sel, err := selectorOf(def, "increment")
				if err != nil {
					return err
				}
				for range 2 {
					if err := e.CallPublic(e.Address(), sel, frOfInt(by)); err != nil {
						return err
					}
				}
				return nil
			},
			"reset": func(e *Env) error {
				owner, err := e.ReadPublic(counterOwnerSlot)
				if err != nil {
					return err
				}
				if err := e.Assert(e.MsgSender().Equal(owner), "reset called by %s, owner is %s", e.MsgSender(), owner); err != nil {
					return err
				}
				return e.WritePublic(counterValueSlot, types.Fr{})
			},
			"get_value": func(e *Env) error {
				v, err := e.ReadPublic(counterValueSlot)
				if err != nil {
					return err
				}
				return e.Return(abi.Integer{Int: intOfFr(v)})
			},
			"get_owner": func(e *Env) error {
				owner, err := e.ReadPublic(counterOwnerSlot)
				if err != nil {
					return err
				}
				return e.Return(abi.FieldOf(owner))
			},
		},
	}
}

// PrivateTokenAbi is the ABI of the private token contract.
func PrivateTokenAbi() *abi.ContractAbi {
	u64 := abi.IntegerType(64)
	return contractAbi(PrivateTokenName,
		constructor(param("initial_supply", u64), param("owner", abi.FieldType())),
		function("mint_batch", abi.Secret,
			[]abi.Parameter{param("owner", abi.FieldType()), param("count", abi.IntegerType(8)), param("seed", abi.FieldType())}),
		function("transfer", abi.Secret, []abi.Parameter{
			param("amount", u64),
			param("owner", abi.FieldType()),
			param("note_value", u64),
			param("note_nonce", abi.FieldType()),
			param("recipient", abi.FieldType()),
		}, abi.FieldType(), abi.FieldType()),
		function("withdraw", abi.Secret, []abi.Parameter{
			param("amount", u64),
			param("owner", abi.FieldType()),
			param("note_value", u64),
			param("note_nonce", abi.FieldType()),
			param("recipient", abi.FieldType()),
		}, abi.FieldType()),
		function("note_commitment", abi.Unconstrained,
			[]abi.Parameter{param("owner", abi.FieldType()), param("value", u64), param("nonce", abi.FieldType())},
			abi.FieldType()),
	)
}

// TokenNoteCommitment is the inner commitment of a token note.
func TokenNoteCommitment(h *domain.Hasher, owner types.AztecAddress, value uint64, nonce types.Fr) (types.Fr, error) {
	return h.NoteCommitment(balancesSlot, owner.Fr, types.NewFr(value), nonce)
}

// PrivateToken keeps balances as notes. Spending a note reveals its
// nullifier; the new notes take nonces derived from it.
func PrivateToken() *Contract {
	// spend consumes the note given in the arguments and returns its
	// nullifier and the change left after amount.
	spend := func(e *Env) (types.Fr, *uint256.Int, types.AztecAddress, error) {
		amount, err := e.IntArg("amount")
		if err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		owner, err := e.AddressArg("owner")
		if err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		if err := e.Assert(e.MsgSender() == owner, "note of %s spent by %s", owner, e.MsgSender()); err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		value, err := e.IntArg("note_value")
		if err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		if err := e.Assert(amount.Cmp(value) <= 0, "amount %s exceeds note value %s", amount.Dec(), value.Dec()); err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		nonce, err := e.FieldArg("note_nonce")
		if err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		note, err := e.Hasher().NoteCommitment(balancesSlot, owner.Fr, frOfInt(value), nonce)
		if err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		if err := e.ReadNote(note); err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		nullifier, err := e.Hasher().NoteNullifier(note, owner.Fr)
		if err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		if err := e.Nullify(nullifier); err != nil {
			return types.Fr{}, nil, types.AztecAddress{}, err
		}
		return nullifier, new(uint256.Int).Sub(value, amount), owner, nil
	}
	return &Contract{
		Abi: PrivateTokenAbi(),
		Functions: map[string]Function{
			"constructor": func(e *Env) error {
				supply, err := e.IntArg("initial_supply")
				if err != nil {
					return err
				}
				owner, err := e.FieldArg("owner")
				if err != nil {
					return err
				}
				_, err = e.NewNote(balancesSlot, owner, frOfInt(supply), types.Fr{})
				return err
			},
			"mint_batch": func(e *Env) error {
				owner, err := e.FieldArg("owner")
				if err != nil {
					return err
				}
				count, err := e.IntArg("count")
				if err != nil {
					return err
				}
				seed, err := e.FieldArg("seed")
				if err != nil {
					return err
				}
				for i := uint64(0); i < count.Uint64(); i++ {
					if _, err := e.NewNote(balancesSlot, owner, types.NewFr(1), seed.Add(types.NewFr(i))); err != nil {
						return err
					}
				}
				return nil
			},
			"transfer": func(e *Env) error {
				nullifier, change, owner, err := spend(e)
				if err != nil {
					return err
				}
				amount, err := e.IntArg("amount")
				if err != nil {
					return err
				}
				recipient, err := e.FieldArg("recipient")
				if err != nil {
					return err
				}
				recipientNonce := nullifier.Add(types.NewFr(1))
				if _, err := e.NewNote(balancesSlot, recipient, frOfInt(amount), recipientNonce); err != nil {
					return err
				}
				if !change.IsZero() {
					if _, err := e.NewNote(balancesSlot, owner.Fr, frOfInt(change), nullifier); err != nil {
						return err
					}
				}
				return e.Return(abi.FieldOf(recipientNonce), abi.FieldOf(nullifier))
			},
			"withdraw": func(e *Env) error {
				nullifier, change, owner, err := spend(e)
				if err != nil {
					return err
				}
				amount, err := e.IntArg("amount")
				if err != nil {
					return err
				}
				recipient, err := e.FieldArg("recipient")
				if err != nil {
					return err
				}
				if !change.IsZero() {
					if _, err := e.NewNote(balancesSlot, owner.Fr, frOfInt(change), nullifier); err != nil {
						return err
					}
				}
				if err := e.SendL2ToL1(domain.Sha256ToField(recipient, frOfInt(amount))); err != nil {
					return err
				}
				return e.Return(abi.FieldOf(nullifier))
			},
			"note_commitment": func(e *Env) error {
				owner, err := e.AddressArg("owner")
				if err != nil {
					return err
				}
				value, err := e.IntArg("value")
				if err != nil {
					return err
				}
				nonce, err := e.FieldArg("nonce")
				if err != nil {
					return err
				}
				note, err := TokenNoteCommitment(e.Hasher(), owner, value.Uint64(), nonce)
				if err != nil {
					return err
				}
				return e.Return(abi.FieldOf(note))
			},
		},
	}
}
