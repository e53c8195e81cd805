package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/rollcall/pkg/cohort"
	"github.com/platinummonkey/rollcall/pkg/roles"
)

// ErrInvalidPolicy is returned when a policy file fails validation
var ErrInvalidPolicy = errors.New("invalid policy")

// Policy is the reconciliation policy loaded from YAML.
//
//	invite_link: https://discord.gg/abc
//	roles:
//	  everyone: ["1001"]
//	  extra: ["1002"]
//	  unknown_cohort: "1003"
//	  cohorts:
//	    1a: "1004"
//	cohorts:
//	  ids: ["1a", "1b"]
//	  allowed_domains: ["school.example"]
type Policy struct {
	InviteLink string        `yaml:"invite_link"`
	Roles      RolesPolicy   `yaml:"roles"`
	Cohorts    CohortsPolicy `yaml:"cohorts"`
}

// RolesPolicy lists the fixed role ids
type RolesPolicy struct {
	Everyone      []string `yaml:"everyone"`
	Extra         []string `yaml:"extra"`
	UnknownCohort string   `yaml:"unknown_cohort"`
	// Cohorts pins existing roles to cohort ids. Cohorts not listed get a
	// role found or created by name.
	Cohorts map[string]string `yaml:"cohorts"`
}

// CohortsPolicy describes the cohort catalog. No ids means the default
// year x class catalog.
type CohortsPolicy struct {
	IDs            []string `yaml:"ids"`
	AllowedDomains []string `yaml:"allowed_domains"`
}

// LoadPolicy reads and validates a policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy. Unknown keys are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the policy is usable
func (p *Policy) Validate() error {
	if p.InviteLink == "" {
		return fmt.Errorf("%w: invite_link is required", ErrInvalidPolicy)
	}
	if u, err := url.Parse(p.InviteLink); err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: invite_link must be an https URL", ErrInvalidPolicy)
	}
	if strings.TrimSpace(p.Roles.UnknownCohort) == "" {
		return fmt.Errorf("%w: roles.unknown_cohort is required", ErrInvalidPolicy)
	}
	for _, id := range append(append([]string{}, p.Roles.Everyone...), p.Roles.Extra...) {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: role ids must not be empty", ErrInvalidPolicy)
		}
	}
	for _, id := range p.Cohorts.IDs {
		if strings.ContainsAny(id, "@ ") {
			return fmt.Errorf("%w: cohort id %q must be a bare mail local part", ErrInvalidPolicy, id)
		}
	}
	catalog := p.Catalog()
	for cohortID, roleID := range p.Roles.Cohorts {
		if !catalog.Contains(cohortID) {
			return fmt.Errorf("%w: roles.cohorts names unknown cohort %q", ErrInvalidPolicy, cohortID)
		}
		if strings.TrimSpace(roleID) == "" {
			return fmt.Errorf("%w: role for cohort %q must not be empty", ErrInvalidPolicy, cohortID)
		}
	}
	return nil
}

// Catalog builds the cohort catalog
func (p *Policy) Catalog() *cohort.Catalog {
	if len(p.Cohorts.IDs) == 0 {
		return cohort.DefaultCatalog(p.Cohorts.AllowedDomains...)
	}
	return cohort.NewCatalog(p.Cohorts.IDs, p.Cohorts.AllowedDomains)
}

// RolePolicy returns the configured part of the role policy. Cohorts
// without a pinned role are resolved against the platform by
// roles.CohortRoleTable.
func (p *Policy) RolePolicy() roles.Policy {
	rp := roles.Policy{
		Everyone:      toRoleIDs(p.Roles.Everyone),
		Extra:         toRoleIDs(p.Roles.Extra),
		UnknownCohort: roles.RoleID(strings.TrimSpace(p.Roles.UnknownCohort)),
	}
	if len(p.Roles.Cohorts) > 0 {
		rp.CohortRoles = make(map[string]roles.RoleID, len(p.Roles.Cohorts))
		for cohortID, roleID := range p.Roles.Cohorts {
			rp.CohortRoles[strings.ToLower(strings.TrimSpace(cohortID))] = roles.RoleID(strings.TrimSpace(roleID))
		}
	}
	return rp
}

func toRoleIDs(ids []string) []roles.RoleID {
	out := make([]roles.RoleID, 0, len(ids))
	for _, id := range ids {
		out = append(out, roles.RoleID(strings.TrimSpace(id)))
	}
	return out
}
