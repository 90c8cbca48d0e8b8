package abi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/vocdoni/aztec-rpc/types"
)

// Value is an ABI value. The set of implementations is closed: Field, Bool,
// Integer, Array, Struct and String.
type Value interface {
	Kind() Kind
	isValue()
}

// Field is a field element value.
type Field struct{ types.Fr }

// Bool is a boolean value.
type Bool bool

// Integer is an unsigned integer value.
type Integer struct{ *uint256.Int }

// Array is a fixed length array value.
type Array []Value

// Struct is a struct value keyed by field name.
type Struct map[string]Value

// String is a string value, encoded one byte per field element.
type String string

func (Field) Kind() Kind   { return KindField }
func (Bool) Kind() Kind    { return KindBoolean }
func (Integer) Kind() Kind { return KindInteger }
func (Array) Kind() Kind   { return KindArray }
func (Struct) Kind() Kind  { return KindStruct }
func (String) Kind() Kind  { return KindString }

func (Field) isValue()   {}
func (Bool) isValue()    {}
func (Integer) isValue() {}
func (Array) isValue()   {}
func (Struct) isValue()  {}
func (String) isValue()  {}

// NewInteger returns an Integer holding v.
func NewInteger(v uint64) Integer {
	return Integer{uint256.NewInt(v)}
}

// FieldOf wraps a field element.
func FieldOf(f types.Fr) Field {
	return Field{f}
}

// MarshalJSON encodes integers as decimal strings.
func (i Integer) MarshalJSON() ([]byte, error) {
	if i.Int == nil {
		return json.Marshal("0")
	}
	return json.Marshal(i.Dec())
}

// Encode flattens values into field elements following params.
func Encode(params []Parameter, values []Value) ([]types.Fr, error) {
	if len(params) != len(values) {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrArgumentMismatch, len(params), len(values))
	}
	var out []types.Fr
	for i, p := range params {
		fields, err := encodeValue(p.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		out = append(out, fields...)
	}
	return out, nil
}

// EncodeArgs encodes the arguments of fn and checks they fit in ArgsLength
// field elements.
func EncodeArgs(fn *Function, values []Value) ([]types.Fr, error) {
	out, err := Encode(fn.Parameters, values)
	if err != nil {
		return nil, err
	}
	if len(out) > types.ArgsLength {
		return nil, fmt.Errorf("%w: %s encodes to %d fields, at most %d", ErrArgumentMismatch, fn.Name, len(out), types.ArgsLength)
	}
	return out, nil
}

func mismatch(t Type, v Value) error {
	if v == nil {
		return fmt.Errorf("%w: missing %s value", ErrArgumentMismatch, t.Kind)
	}
	return fmt.Errorf("%w: %s value for %s type", ErrArgumentMismatch, v.Kind(), t.Kind)
}

func encodeValue(t Type, v Value) ([]types.Fr, error) {
	switch t.Kind {
	case KindField:
		f, ok := v.(Field)
		if !ok {
			return nil, mismatch(t, v)
		}
		return []types.Fr{f.Fr}, nil
	case KindBoolean:
		b, ok := v.(Bool)
		if !ok {
			return nil, mismatch(t, v)
		}
		return []types.Fr{types.FrFromBool(bool(b))}, nil
	case KindInteger:
		i, ok := v.(Integer)
		if !ok || i.Int == nil {
			return nil, mismatch(t, v)
		}
		if t.Width > 0 && i.BitLen() > t.Width {
			return nil, fmt.Errorf("%w: %s does not fit in %d bits", ErrArgumentMismatch, i.Dec(), t.Width)
		}
		f, err := types.FrFromBig(i.ToBig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
		return []types.Fr{f}, nil
	case KindArray:
		a, ok := v.(Array)
		if !ok || t.Type == nil {
			return nil, mismatch(t, v)
		}
		if len(a) != t.Length {
			return nil, fmt.Errorf("%w: array of %d elements, expected %d", ErrArgumentMismatch, len(a), t.Length)
		}
		var out []types.Fr
		for _, elem := range a {
			fields, err := encodeValue(*t.Type, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, fields...)
		}
		return out, nil
	case KindStruct:
		s, ok := v.(Struct)
		if !ok {
			return nil, mismatch(t, v)
		}
		if len(s) != len(t.Fields) {
			return nil, fmt.Errorf("%w: struct with %d fields, expected %d", ErrArgumentMismatch, len(s), len(t.Fields))
		}
		var out []types.Fr
		for _, f := range t.Fields {
			fields, err := encodeValue(f.Type, s[f.Name])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out = append(out, fields...)
		}
		return out, nil
	case KindString:
		s, ok := v.(String)
		if !ok {
			return nil, mismatch(t, v)
		}
		if len(s) > t.Length {
			return nil, fmt.Errorf("%w: string of %d bytes, at most %d", ErrArgumentMismatch, len(s), t.Length)
		}
		out := make([]types.Fr, t.Length)
		for i := 0; i < len(s); i++ {
			out[i] = types.NewFr(uint64(s[i]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown type kind %q", ErrArgumentMismatch, t.Kind)
	}
}

// Decode rebuilds values of the given types from field elements. Fields
// left after the last type are ignored, so padded return values decode.
func Decode(ts []Type, fields []types.Fr) ([]Value, error) {
	out := make([]Value, 0, len(ts))
	rest := fields
	for _, t := range ts {
		var (
			v   Value
			err error
		)
		if v, rest, err = decodeValue(t, rest); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeValue(t Type, fields []types.Fr) (Value, []types.Fr, error) {
	if len(fields) < t.Size() {
		return nil, nil, fmt.Errorf("%w: %d fields left to decode %s", ErrArgumentMismatch, len(fields), t.signature())
	}
	switch t.Kind {
	case KindField:
		return Field{fields[0]}, fields[1:], nil
	case KindBoolean:
		return Bool(!fields[0].IsZero()), fields[1:], nil
	case KindInteger:
		i, overflow := uint256.FromBig(fields[0].BigInt())
		if overflow {
			return nil, nil, fmt.Errorf("%w: integer overflow", ErrArgumentMismatch)
		}
		return Integer{i}, fields[1:], nil
	case KindArray:
		if t.Type == nil {
			return nil, nil, fmt.Errorf("%w: array without element type", ErrArgumentMismatch)
		}
		a := make(Array, t.Length)
		rest := fields
		for i := range a {
			var err error
			if a[i], rest, err = decodeValue(*t.Type, rest); err != nil {
				return nil, nil, err
			}
		}
		return a, rest, nil
	case KindStruct:
		s := make(Struct, len(t.Fields))
		rest := fields
		for _, f := range t.Fields {
			var (
				v   Value
				err error
			)
			if v, rest, err = decodeValue(f.Type, rest); err != nil {
				return nil, nil, err
			}
			s[f.Name] = v
		}
		return s, rest, nil
	case KindString:
		var sb strings.Builder
		for _, f := range fields[:t.Length] {
			c, ok := f.Uint64()
			if !ok || c > 0xff {
				return nil, nil, fmt.Errorf("%w: string byte out of range", ErrArgumentMismatch)
			}
			if c != 0 {
				sb.WriteByte(byte(c))
			}
		}
		return String(sb.String()), fields[t.Length:], nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown type kind %q", ErrArgumentMismatch, t.Kind)
	}
}

// ParseArgs decodes the JSON arguments of fn, one raw message per parameter.
func ParseArgs(fn *Function, raw []json.RawMessage) ([]Value, error) {
	if len(raw) != len(fn.Parameters) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgumentMismatch, fn.Name, len(fn.Parameters), len(raw))
	}
	out := make([]Value, len(raw))
	for i, p := range fn.Parameters {
		v, err := ParseValue(p.Type, raw[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseValue decodes a JSON value of type t. Fields and integers accept
// numbers, decimal strings and 0x prefixed hex strings.
func ParseValue(t Type, raw json.RawMessage) (Value, error) {
	switch t.Kind {
	case KindField:
		n, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		f, err := types.FrFromBig(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
		return Field{f}, nil
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
		return Bool(b), nil
	case KindInteger:
		n, err := parseNumber(raw)
		if err != nil {
			return nil, err
		}
		i, overflow := uint256.FromBig(n)
		if overflow || n.Sign() < 0 {
			return nil, fmt.Errorf("%w: integer out of range", ErrArgumentMismatch)
		}
		return Integer{i}, nil
	case KindArray:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
		if t.Type == nil || len(elems) != t.Length {
			return nil, fmt.Errorf("%w: array of %d elements, expected %d", ErrArgumentMismatch, len(elems), t.Length)
		}
		a := make(Array, len(elems))
		for i, e := range elems {
			v, err := ParseValue(*t.Type, e)
			if err != nil {
				return nil, err
			}
			a[i] = v
		}
		return a, nil
	case KindStruct:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
		s := make(Struct, len(t.Fields))
		for _, f := range t.Fields {
			fraw, ok := obj[f.Name]
			if !ok {
				return nil, fmt.Errorf("%w: missing field %s", ErrArgumentMismatch, f.Name)
			}
			v, err := ParseValue(f.Type, fraw)
			if err != nil {
				return nil, err
			}
			s[f.Name] = v
		}
		return s, nil
	case KindString:
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
		return String(str), nil
	default:
		return nil, fmt.Errorf("%w: unknown type kind %q", ErrArgumentMismatch, t.Kind)
	}
}

func parseNumber(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	s := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentMismatch, err)
		}
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: invalid number %q", ErrArgumentMismatch, s)
	}
	return n, nil
}
