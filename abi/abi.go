// Package abi describes the interface of rollup contracts: their functions,
// the types of their parameters and return values, and the encoding of
// values as field elements.
package abi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/aztec-rpc/types"
)

var (
	// ErrFunctionNotFound is returned when an ABI has no function with the
	// requested name.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrArgumentMismatch is returned when values do not match the types
	// they are encoded or decoded with.
	ErrArgumentMismatch = errors.New("argument mismatch")
	// ErrInvalidAbi is returned for malformed contract ABIs.
	ErrInvalidAbi = errors.New("invalid contract abi")
)

// FunctionType is the execution domain of a function.
type FunctionType string

const (
	// Secret functions run privately on the client.
	Secret FunctionType = "secret"
	// Open functions run publicly on the sequencer.
	Open FunctionType = "open"
	// Unconstrained functions are only simulated, never proven.
	Unconstrained FunctionType = "unconstrained"
)

// Kind is the kind of an ABI type.
type Kind string

const (
	KindField   Kind = "field"
	KindBoolean Kind = "boolean"
	KindInteger Kind = "integer"
	KindArray   Kind = "array"
	KindStruct  Kind = "struct"
	KindString  Kind = "string"
)

// Type is an ABI type. Integers carry Sign and Width, arrays an element
// Type and a Length, strings a Length and structs their Fields.
type Type struct {
	Kind   Kind        `json:"kind"`
	Sign   string      `json:"sign,omitempty"`
	Width  int         `json:"width,omitempty"`
	Length int         `json:"length,omitempty"`
	Type   *Type       `json:"type,omitempty"`
	Fields []Parameter `json:"fields,omitempty"`
}

// Parameter is a named, typed function parameter or struct field.
type Parameter struct {
	Name       string `json:"name"`
	Type       Type   `json:"type"`
	Visibility string `json:"visibility,omitempty"`
}

// Function is one function of a contract.
type Function struct {
	Name            string         `json:"name"`
	FunctionType    FunctionType   `json:"functionType"`
	IsConstructor   bool           `json:"isConstructor"`
	Parameters      []Parameter    `json:"parameters"`
	ReturnTypes     []Type         `json:"returnTypes"`
	Bytecode        types.HexBytes `json:"bytecode"`
	VerificationKey types.HexBytes `json:"verificationKey,omitempty"`
}

// ContractAbi is the interface of a contract.
type ContractAbi struct {
	Name      string     `json:"name"`
	Functions []Function `json:"functions"`
}

// Load decodes a JSON contract ABI.
func Load(r io.Reader) (*ContractAbi, error) {
	c := &ContractAbi{}
	if err := json.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("could not decode contract abi: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that function names are unique and that there is at most
// one constructor.
func (c *ContractAbi) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: no name", ErrInvalidAbi)
	}
	seen := make(map[string]bool, len(c.Functions))
	ctors := 0
	for _, fn := range c.Functions {
		if seen[fn.Name] {
			return fmt.Errorf("%w: duplicate function %q in %s", ErrInvalidAbi, fn.Name, c.Name)
		}
		seen[fn.Name] = true
		switch fn.FunctionType {
		case Secret, Open, Unconstrained:
		default:
			return fmt.Errorf("%w: function %s.%s has unknown type %q", ErrInvalidAbi, c.Name, fn.Name, fn.FunctionType)
		}
		if fn.IsConstructor {
			ctors++
		}
	}
	if ctors > 1 {
		return fmt.Errorf("%w: %s declares %d constructors", ErrInvalidAbi, c.Name, ctors)
	}
	return nil
}

// Function returns the function called name.
func (c *ContractAbi) Function(name string) (*Function, error) {
	for i := range c.Functions {
		if c.Functions[i].Name == name {
			return &c.Functions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrFunctionNotFound, c.Name, name)
}

// FunctionBySelector returns the function with the given selector.
func (c *ContractAbi) FunctionBySelector(sel types.Selector) (*Function, error) {
	for i := range c.Functions {
		if c.Functions[i].Selector() == sel {
			return &c.Functions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s selector %s", ErrFunctionNotFound, c.Name, sel)
}

// Constructor returns the constructor of the contract, if any.
func (c *ContractAbi) Constructor() (*Function, bool) {
	for i := range c.Functions {
		if c.Functions[i].IsConstructor {
			return &c.Functions[i], true
		}
	}
	return nil, false
}

// IsPrivate reports whether the function runs in the private domain.
func (f *Function) IsPrivate() bool {
	return f.FunctionType == Secret
}

// ParameterTypes returns the types of the parameters of f.
func (f *Function) ParameterTypes() []Type {
	ts := make([]Type, len(f.Parameters))
	for i, p := range f.Parameters {
		ts[i] = p.Type
	}
	return ts
}

// Signature returns the canonical signature hashed into the selector, such
// as transfer(field,u64,[field;2]).
func (f *Function) Signature() string {
	parts := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		parts[i] = p.Type.signature()
	}
	return f.Name + "(" + strings.Join(parts, ",") + ")"
}

// Selector returns the first FunctionSelectorNumBytes bytes of the keccak256
// of the signature.
func (f *Function) Selector() types.Selector {
	var s types.Selector
	copy(s[:], crypto.Keccak256([]byte(f.Signature()))[:types.FunctionSelectorNumBytes])
	return s
}

func (t Type) signature() string {
	switch t.Kind {
	case KindField:
		return "field"
	case KindBoolean:
		return "bool"
	case KindInteger:
		if t.Sign == "signed" {
			return fmt.Sprintf("i%d", t.Width)
		}
		return fmt.Sprintf("u%d", t.Width)
	case KindArray:
		elem := "?"
		if t.Type != nil {
			elem = t.Type.signature()
		}
		return fmt.Sprintf("[%s;%d]", elem, t.Length)
	case KindString:
		return fmt.Sprintf("str<%d>", t.Length)
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Type.signature()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return string(t.Kind)
	}
}

// Size returns the number of field elements of an encoded value of type t.
func (t Type) Size() int {
	switch t.Kind {
	case KindArray:
		if t.Type == nil {
			return 0
		}
		return t.Length * t.Type.Size()
	case KindString:
		return t.Length
	case KindStruct:
		n := 0
		for _, f := range t.Fields {
			n += f.Type.Size()
		}
		return n
	default:
		return 1
	}
}

// FieldType is the type of a field element.
func FieldType() Type { return Type{Kind: KindField} }

// BoolType is the boolean type.
func BoolType() Type { return Type{Kind: KindBoolean} }

// IntegerType is an unsigned integer of the given bit width.
func IntegerType(width int) Type { return Type{Kind: KindInteger, Sign: "unsigned", Width: width} }

// ArrayType is a fixed length array of elem.
func ArrayType(elem Type, length int) Type { return Type{Kind: KindArray, Type: &elem, Length: length} }

// StringType is a fixed length string.
func StringType(length int) Type { return Type{Kind: KindString, Length: length} }

// StructType is a struct with the given fields.
func StructType(fields ...Parameter) Type { return Type{Kind: KindStruct, Fields: fields} }
