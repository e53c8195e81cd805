package roles

import (
	"strings"
)

// Policy is the desired role state, recomputed for every reconciliation
type Policy struct {
	// Everyone roles are held by every member
	Everyone []RoleID
	// Extra roles are held by members with an identity
	Extra []RoleID
	// CohortRoles maps lower case cohort ids to their role
	CohortRoles map[string]RoleID
	// UnknownCohort is held by members with an identity but no resolved cohort
	UnknownCohort RoleID
}

// Subject is what the engine needs to know about a member
type Subject struct {
	HasIdentity bool
	// CohortID is empty when the cohort is unknown
	CohortID string
}

// CohortRole returns the role for a cohort id, ignoring case
func (p Policy) CohortRole(cohortID string) (RoleID, bool) {
	if cohortID == "" {
		return "", false
	}
	id, ok := p.CohortRoles[strings.ToLower(cohortID)]
	return id, ok && id != ""
}

// Compute returns the changes that bring assigned in line with policy
// for the subject. Only roles that change state are included.
func Compute(p Policy, s Subject, assigned Set) Diff {
	d := NewDiff()

	for _, id := range p.Everyone {
		d.Assign(id)
	}

	for _, id := range p.Extra {
		if s.HasIdentity {
			d.Assign(id)
		} else {
			d.Remove(id)
		}
	}

	if p.UnknownCohort != "" {
		d.Remove(p.UnknownCohort)
	}
	for _, id := range p.CohortRoles {
		if id != "" {
			d.Remove(id)
		}
	}
	if s.HasIdentity {
		if id, ok := p.CohortRole(s.CohortID); ok {
			d.Assign(id)
		} else if p.UnknownCohort != "" {
			d.Assign(p.UnknownCohort)
		}
	}

	return d.Changes(assigned)
}
