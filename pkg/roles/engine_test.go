package roles

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		Everyone: []RoleID{"everyone"},
		Extra:    []RoleID{"extra-1", "extra-2"},
		CohortRoles: map[string]RoleID{
			"1a": "role-1A",
			"2a": "role-2A",
			"3b": "role-3B",
		},
		UnknownCohort: "role-unknown",
	}
}

func TestCompute_CohortResolvedFromGroupMail(t *testing.T) {
	p := testPolicy()
	assigned := NewSet("everyone", "extra-1", "extra-2", "role-1A")

	d := Compute(p, Subject{HasIdentity: true, CohortID: "2a"}, assigned)

	assert.Equal(t, []RoleID{"role-2A"}, d.ToAssign())
	assert.Equal(t, []RoleID{"role-1A"}, d.ToRemove())
}

func TestCompute_NoIdentityRemovesExtraOnly(t *testing.T) {
	p := testPolicy()
	assigned := NewSet("everyone", "extra-1")

	d := Compute(p, Subject{}, assigned)

	assert.Empty(t, d.ToAssign())
	assert.Equal(t, []RoleID{"extra-1"}, d.ToRemove())
}

func TestCompute_NoIdentityStripsCohortRoles(t *testing.T) {
	p := testPolicy()
	assigned := NewSet("everyone", "role-3B", "role-unknown")

	d := Compute(p, Subject{}, assigned)

	assert.Empty(t, d.ToAssign())
	assert.Equal(t, []RoleID{"role-3B", "role-unknown"}, d.ToRemove())
}

func TestCompute_UnknownCohort(t *testing.T) {
	p := testPolicy()

	d := Compute(p, Subject{HasIdentity: true}, NewSet("role-2A"))
	assert.Equal(t, []RoleID{"everyone", "extra-1", "extra-2", "role-unknown"}, d.ToAssign())
	assert.Equal(t, []RoleID{"role-2A"}, d.ToRemove())

	d = Compute(p, Subject{HasIdentity: true, CohortID: "9z"}, NewSet())
	assert.Contains(t, d.ToAssign(), RoleID("role-unknown"))
}

func TestCompute_KnownCohortDropsUnknownRole(t *testing.T) {
	p := testPolicy()
	assigned := NewSet("everyone", "extra-1", "extra-2", "role-unknown")

	d := Compute(p, Subject{HasIdentity: true, CohortID: "3B"}, assigned)

	assert.Equal(t, []RoleID{"role-3B"}, d.ToAssign())
	assert.Equal(t, []RoleID{"role-unknown"}, d.ToRemove())
}

func TestCompute_AlreadyCorrectIsNoop(t *testing.T) {
	p := testPolicy()
	assigned := NewSet("everyone", "extra-1", "extra-2", "role-2A", "unrelated")

	d := Compute(p, Subject{HasIdentity: true, CohortID: "2a"}, assigned)

	assert.True(t, d.IsEmpty())
}

func randomAssigned(r *rand.Rand, universe []RoleID) Set {
	s := NewSet()
	for _, id := range universe {
		if r.Intn(2) == 0 {
			s[id] = struct{}{}
		}
	}
	return s
}

func randomSubject(r *rand.Rand) Subject {
	cohorts := []string{"", "1a", "2A", "3b", "4k"}
	return Subject{
		HasIdentity: r.Intn(3) != 0,
		CohortID:    cohorts[r.Intn(len(cohorts))],
	}
}

func randomPolicy(r *rand.Rand) Policy {
	p := Policy{CohortRoles: map[string]RoleID{}}
	pick := func() RoleID { return RoleID(fmt.Sprintf("r%d", r.Intn(12))) }
	for i := 0; i < r.Intn(3); i++ {
		p.Everyone = append(p.Everyone, pick())
	}
	for i := 0; i < r.Intn(3); i++ {
		p.Extra = append(p.Extra, pick())
	}
	for _, c := range []string{"1a", "2a", "3b"} {
		p.CohortRoles[c] = pick()
	}
	if r.Intn(4) != 0 {
		p.UnknownCohort = pick()
	}
	return p
}

func universe() []RoleID {
	ids := make([]RoleID, 0, 12)
	for i := 0; i < 12; i++ {
		ids = append(ids, RoleID(fmt.Sprintf("r%d", i)))
	}
	return ids
}

func TestCompute_Idempotence(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	all := universe()

	for i := 0; i < 2000; i++ {
		p := randomPolicy(r)
		s := randomSubject(r)
		assigned := randomAssigned(r, all)

		first := Compute(p, s, assigned)
		second := Compute(p, s, first.Apply(assigned))

		require.True(t, second.IsEmpty(),
			"iteration %d: policy %+v subject %+v assigned %v left %v/%v",
			i, p, s, assigned.Sorted(), second.ToAssign(), second.ToRemove())
	}
}

func TestCompute_Disjointness(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	all := universe()

	for i := 0; i < 2000; i++ {
		d := Compute(randomPolicy(r), randomSubject(r), randomAssigned(r, all))

		remove := NewSet(d.ToRemove()...)
		for _, id := range d.ToAssign() {
			require.False(t, remove.Has(id), "iteration %d: %s on both sides", i, id)
		}
	}
}

func TestCompute_OnlyChanges(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	all := universe()

	for i := 0; i < 1000; i++ {
		assigned := randomAssigned(r, all)
		d := Compute(randomPolicy(r), randomSubject(r), assigned)

		for _, id := range d.ToAssign() {
			require.False(t, assigned.Has(id))
		}
		for _, id := range d.ToRemove() {
			require.True(t, assigned.Has(id))
		}
	}
}
