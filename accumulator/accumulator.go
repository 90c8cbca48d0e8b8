// Package accumulator provides the capacity bounded, insertion ordered
// collections used to gather the side effects of function calls and
// transactions.
package accumulator

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded matches every *CapacityExceededError with errors.Is.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// Scope tells whether a limit applies to a single call or to a transaction.
type Scope string

const (
	ScopeCall Scope = "call"
	ScopeTx   Scope = "tx"
)

// CapacityExceededError reports which limit was hit.
type CapacityExceededError struct {
	Category  string
	Scope     Scope
	Limit     int
	Attempted int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded: %s per %s limit is %d, attempted %d",
		e.Category, e.Scope, e.Limit, e.Attempted)
}

// Is makes errors.Is(err, ErrCapacityExceeded) true.
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// Bounded is an ordered collection that never holds more than its limit.
// Failed operations leave the collection unchanged. It is not safe for
// concurrent use.
type Bounded[T any] struct {
	category string
	scope    Scope
	limit    int
	items    []T
}

// New returns an empty accumulator.
func New[T any](category string, scope Scope, limit int) *Bounded[T] {
	return &Bounded[T]{
		category: category,
		scope:    scope,
		limit:    limit,
		items:    make([]T, 0, limit),
	}
}

func (b *Bounded[T]) exceeded(attempted int) error {
	return &CapacityExceededError{
		Category:  b.category,
		Scope:     b.scope,
		Limit:     b.limit,
		Attempted: attempted,
	}
}

// Push appends one item.
func (b *Bounded[T]) Push(item T) error {
	return b.PushAll(item)
}

// PushAll appends items in order, either all of them or none.
func (b *Bounded[T]) PushAll(items ...T) error {
	if len(b.items)+len(items) > b.limit {
		return b.exceeded(len(b.items) + len(items))
	}
	b.items = append(b.items, items...)
	return nil
}

// Merge appends the items of other after the current ones. It fails, and
// appends nothing, iff the combined length exceeds the limit.
func (b *Bounded[T]) Merge(other *Bounded[T]) error {
	if other == nil {
		return nil
	}
	return b.PushAll(other.items...)
}

// Items returns a copy of the items in insertion order.
func (b *Bounded[T]) Items() []T {
	return append([]T(nil), b.items...)
}

// Padded returns the items followed by zero until the limit is reached.
func (b *Bounded[T]) Padded(zero T) []T {
	out := make([]T, b.limit)
	n := copy(out, b.items)
	for i := n; i < b.limit; i++ {
		out[i] = zero
	}
	return out
}

// Len returns the number of items.
func (b *Bounded[T]) Len() int { return len(b.items) }

// Cap returns the limit.
func (b *Bounded[T]) Cap() int { return b.limit }

// Remaining returns how many items can still be pushed.
func (b *Bounded[T]) Remaining() int { return b.limit - len(b.items) }

// Category returns the side effect category of the accumulator.
func (b *Bounded[T]) Category() string { return b.category }

// Scope returns the scope of the limit.
func (b *Bounded[T]) Scope() Scope { return b.scope }

// RollUp merges parts, in order, into a new accumulator with the given
// limit.
func RollUp[T any](category string, scope Scope, limit int, parts ...*Bounded[T]) (*Bounded[T], error) {
	out := New[T](category, scope, limit)
	for _, p := range parts {
		if err := out.Merge(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}
