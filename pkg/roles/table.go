package roles

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/platinummonkey/rollcall/pkg/cohort"
)

// CohortRoleReason is the audit reason used when creating cohort roles
const CohortRoleReason = "Role for students of class"

// CohortRoleTable builds the cohort to role mapping on first use and keeps
// it for the lifetime of the process. Cohorts with a configured role are not
// looked up.
type CohortRoleTable struct {
	platform Platform
	catalog  *cohort.Catalog
	base     Policy

	mu     sync.Mutex
	policy atomic.Pointer[Policy]
}

// NewCohortRoleTable creates a table for the catalog cohorts
func NewCohortRoleTable(platform Platform, catalog *cohort.Catalog, base Policy) *CohortRoleTable {
	return &CohortRoleTable{
		platform: platform,
		catalog:  catalog,
		base:     base,
	}
}

// Policy returns the full policy, resolving cohort roles once. A failed
// resolution is retried by the next call.
func (t *CohortRoleTable) Policy(ctx context.Context) (Policy, error) {
	if p := t.policy.Load(); p != nil {
		return *p, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p := t.policy.Load(); p != nil {
		return *p, nil
	}

	mapping := make(map[string]RoleID, len(t.catalog.IDs()))
	for id, role := range t.base.CohortRoles {
		mapping[strings.ToLower(id)] = role
	}
	for _, id := range t.catalog.IDs() {
		if _, ok := mapping[id]; ok {
			continue
		}
		role, err := t.platform.FindOrCreateRole(ctx, cohort.RoleName(id), CohortRoleReason)
		if err != nil {
			return Policy{}, fmt.Errorf("failed to resolve role for cohort %s: %w", id, err)
		}
		mapping[id] = role.ID
	}

	p := t.base
	p.CohortRoles = mapping
	t.policy.Store(&p)
	return p, nil
}
