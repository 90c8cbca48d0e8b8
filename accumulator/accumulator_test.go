package accumulator

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPushRespectsLimit(t *testing.T) {
	c := qt.New(t)

	acc := New[int]("commitments", ScopeCall, 4)
	for i := range 4 {
		c.Assert(acc.Push(i), qt.IsNil)
	}
	c.Assert(acc.Remaining(), qt.Equals, 0)

	err := acc.Push(4)
	c.Assert(err, qt.ErrorIs, ErrCapacityExceeded)
	var capErr *CapacityExceededError
	c.Assert(errors.As(err, &capErr), qt.IsTrue)
	c.Assert(capErr.Category, qt.Equals, "commitments")
	c.Assert(capErr.Scope, qt.Equals, ScopeCall)
	c.Assert(capErr.Limit, qt.Equals, 4)
	c.Assert(capErr.Attempted, qt.Equals, 5)
	c.Assert(acc.Items(), qt.DeepEquals, []int{0, 1, 2, 3})
}

func TestPushAllIsAtomic(t *testing.T) {
	c := qt.New(t)

	acc := New[string]("nullifiers", ScopeTx, 3)
	c.Assert(acc.PushAll("a", "b"), qt.IsNil)
	c.Assert(acc.PushAll("c", "d"), qt.ErrorIs, ErrCapacityExceeded)
	c.Assert(acc.Items(), qt.DeepEquals, []string{"a", "b"})
}

func TestMerge(t *testing.T) {
	c := qt.New(t)

	a := New[int]("commitments", ScopeTx, 16)
	c.Assert(a.PushAll(1, 2, 3), qt.IsNil)
	b := New[int]("commitments", ScopeCall, 4)
	c.Assert(b.PushAll(4, 5), qt.IsNil)

	c.Assert(a.Merge(b), qt.IsNil)
	c.Assert(a.Items(), qt.DeepEquals, []int{1, 2, 3, 4, 5})
	c.Assert(a.Merge(nil), qt.IsNil)

	// exactly at the limit succeeds, one more fails
	full := New[int]("commitments", ScopeTx, 7)
	c.Assert(full.Merge(a), qt.IsNil)
	c.Assert(full.Merge(b), qt.IsNil)
	c.Assert(full.Len(), qt.Equals, 7)
	c.Assert(full.Merge(b), qt.ErrorIs, ErrCapacityExceeded)
	c.Assert(full.Len(), qt.Equals, 7)

	over := New[int]("commitments", ScopeTx, 7)
	c.Assert(over.PushAll(1, 2, 3, 4, 5, 6), qt.IsNil)
	c.Assert(over.Merge(b), qt.ErrorIs, ErrCapacityExceeded)
	c.Assert(over.Items(), qt.DeepEquals, []int{1, 2, 3, 4, 5, 6})
}

func TestRollUp(t *testing.T) {
	c := qt.New(t)

	calls := make([]*Bounded[int], 5)
	for i := range calls {
		calls[i] = New[int]("commitments", ScopeCall, 4)
		for j := range 4 {
			c.Assert(calls[i].Push(i*4+j), qt.IsNil)
		}
	}

	rolled, err := RollUp("commitments", ScopeTx, 16, calls[:4]...)
	c.Assert(err, qt.IsNil)
	c.Assert(rolled.Len(), qt.Equals, 16)
	c.Assert(rolled.Items()[15], qt.Equals, 15)

	_, err = RollUp("commitments", ScopeTx, 16, calls...)
	var capErr *CapacityExceededError
	c.Assert(errors.As(err, &capErr), qt.IsTrue)
	c.Assert(capErr.Limit, qt.Equals, 16)
	c.Assert(capErr.Scope, qt.Equals, ScopeTx)
}

func TestPadded(t *testing.T) {
	c := qt.New(t)

	acc := New[int]("contracts", ScopeTx, 4)
	c.Assert(acc.Push(9), qt.IsNil)
	c.Assert(acc.Padded(-1), qt.DeepEquals, []int{9, -1, -1, -1})
	c.Assert(acc.Cap(), qt.Equals, 4)
	c.Assert(acc.Category(), qt.Equals, "contracts")
}
