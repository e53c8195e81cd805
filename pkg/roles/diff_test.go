package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff_LastWriterWins(t *testing.T) {
	var d Diff
	d.Remove("a")
	d.Assign("a")
	d.Assign("b")
	d.Remove("b")

	assert.Equal(t, []RoleID{"a"}, d.ToAssign())
	assert.Equal(t, []RoleID{"b"}, d.ToRemove())
	assert.Equal(t, 2, d.Len())
}

func TestDiff_Changes(t *testing.T) {
	d := NewDiff()
	d.Assign("held")
	d.Assign("missing")
	d.Remove("held-remove")
	d.Remove("absent")

	changes := d.Changes(NewSet("held", "held-remove"))

	assert.Equal(t, []RoleID{"missing"}, changes.ToAssign())
	assert.Equal(t, []RoleID{"held-remove"}, changes.ToRemove())
}

func TestDiff_Apply(t *testing.T) {
	d := NewDiff()
	d.Assign("x")
	d.Remove("y")

	assigned := NewSet("y", "z")
	result := d.Apply(assigned)

	assert.Equal(t, []RoleID{"x", "z"}, result.Sorted())
	assert.Equal(t, []RoleID{"y", "z"}, assigned.Sorted(), "input must not be mutated")
}

func TestDiff_IsEmpty(t *testing.T) {
	var zero Diff
	assert.True(t, zero.IsEmpty())
	assert.Empty(t, zero.ToAssign())

	d := NewDiff()
	d.Assign("a")
	assert.False(t, d.IsEmpty())
}
