// Package simulator executes contract functions for the tx assembler. The
// contracts are Go implementations registered under the name of their ABI.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/aztec-rpc/abi"
	"github.com/vocdoni/aztec-rpc/crypto/domain"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

var (
	// ErrContractNotFound is returned when the resolver does not know the
	// called address.
	ErrContractNotFound = errors.New("contract not found")
	// ErrNotImplemented is returned when no implementation is registered for
	// a contract ABI or one of its functions.
	ErrNotImplemented = errors.New("contract function not implemented")
	// ErrForbidden is returned when a function attempts an operation its
	// function type does not allow.
	ErrForbidden = errors.New("operation not allowed")
	// ErrAssertion is returned when contract logic fails.
	ErrAssertion = errors.New("assertion failed")
	// ErrInvalidCall is returned when the call does not match the function
	// it targets.
	ErrInvalidCall = errors.New("invalid call")
)

// ContractResolver returns the ABI of the contract deployed at an address.
// It must wrap ErrContractNotFound for unknown addresses.
type ContractResolver interface {
	ContractAbi(ctx context.Context, address types.AztecAddress) (*abi.ContractAbi, error)
}

// StateReader reads the public data tree.
type StateReader interface {
	StorageAt(index types.Fr) (types.Fr, error)
}

// Function is the implementation of one contract function.
type Function func(env *Env) error

// Contract is the implementation of a contract ABI.
type Contract struct {
	Abi       *abi.ContractAbi
	Functions map[string]Function
}

// Registry holds the contract implementations by ABI name. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
}

// NewRegistry returns a registry holding contracts.
func NewRegistry(contracts ...*Contract) (*Registry, error) {
	r := &Registry{contracts: make(map[string]*Contract)}
	for _, c := range contracts {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c, replacing any contract with the same ABI name.
func (r *Registry) Register(c *Contract) error {
	if c == nil || c.Abi == nil {
		return fmt.Errorf("contract without abi")
	}
	if err := c.Abi.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.Abi.Name] = c
	return nil
}

// Lookup returns the contract registered as name.
func (r *Registry) Lookup(name string) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[name]
	return c, ok
}

// Simulator runs contract functions. It implements tx.Executor.
type Simulator struct {
	hasher   *domain.Hasher
	resolver ContractResolver
	state    StateReader
	registry *Registry
}

var _ tx.Executor = (*Simulator)(nil)

// New returns a simulator. A nil hasher selects domain.Default and a nil
// registry the built-in contracts.
func New(h *domain.Hasher, resolver ContractResolver, state StateReader, registry *Registry) *Simulator {
	if h == nil {
		h = domain.Default
	}
	if registry == nil {
		registry = Builtins()
	}
	return &Simulator{hasher: h, resolver: resolver, state: state, registry: registry}
}

// Registry returns the contract implementations of the simulator.
func (s *Simulator) Registry() *Registry { return s.registry }

func (s *Simulator) resolve(ctx context.Context, call tx.FunctionCall) (*abi.Function, Function, error) {
	def, err := s.resolver.ContractAbi(ctx, call.Contract)
	if err != nil {
		return nil, nil, err
	}
	contract, ok := s.registry.Lookup(def.Name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no implementation for %s", ErrNotImplemented, def.Name)
	}
	fn, err := def.FunctionBySelector(call.FunctionData.Selector)
	if err != nil {
		return nil, nil, err
	}
	impl, ok := contract.Functions[fn.Name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.%s", ErrNotImplemented, def.Name, fn.Name)
	}
	return fn, impl, nil
}

// Execute runs one private or public call.
func (s *Simulator) Execute(ctx context.Context, req *tx.ExecutionRequest) (*tx.CallResult, error) {
	fn, impl, err := s.resolve(ctx, req.Call)
	if err != nil {
		return nil, err
	}
	if fn.FunctionType == abi.Unconstrained {
		return nil, fmt.Errorf("%w: unconstrained function %s cannot be part of a tx", ErrInvalidCall, fn.Name)
	}
	if fn.IsPrivate() != req.Call.FunctionData.IsPrivate || fn.IsConstructor != req.Call.FunctionData.IsConstructor {
		return nil, fmt.Errorf("%w: function data does not match %s", ErrInvalidCall, fn.Name)
	}
	return s.run(ctx, req, fn, impl)
}

// View runs an unconstrained function against the current public state and
// returns its return values. Nothing is recorded.
func (s *Simulator) View(ctx context.Context, origin types.AztecAddress, call tx.FunctionCall) ([]types.Fr, error) {
	fn, impl, err := s.resolve(ctx, call)
	if err != nil {
		return nil, err
	}
	if fn.FunctionType != abi.Unconstrained {
		return nil, fmt.Errorf("%w: %s is not unconstrained", ErrInvalidCall, fn.Name)
	}
	if call.CallContext.StorageContractAddress.IsZero() {
		call.CallContext.StorageContractAddress = call.Contract
	}
	if call.CallContext.MsgSender.IsZero() {
		call.CallContext.MsgSender = origin
	}
	res, err := s.run(ctx, &tx.ExecutionRequest{Call: call, Origin: origin}, fn, impl)
	if err != nil {
		return nil, err
	}
	return res.ReturnValues, nil
}

func (s *Simulator) run(ctx context.Context, req *tx.ExecutionRequest, fn *abi.Function, impl Function) (*tx.CallResult, error) {
	args, err := abi.Decode(fn.ParameterTypes(), req.Call.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: arguments of %s: %w", ErrInvalidCall, fn.Name, err)
	}
	env := newEnv(ctx, s.hasher, s.state, req, fn, args)
	if err := impl(env); err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	return env.result, nil
}
