package cohort

import (
	"strings"
)

// Group is a provider group membership
type Group struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
}

// Years and Classes make up the default cohort ids ("1a" .. "4k")
var (
	Years   = []string{"1", "2", "3", "4"}
	Classes = []string{"a", "b", "c", "g", "ga", "gb", "k"}
)

// Catalog is the set of recognized cohort ids and the mail domains a
// cohort group may live under.
type Catalog struct {
	ids            []string
	allowedDomains []string
}

// NewCatalog creates a catalog. Ids are normalized to lower case. An empty
// domain list accepts any domain.
func NewCatalog(ids []string, allowedDomains []string) *Catalog {
	c := &Catalog{
		ids:            make([]string, 0, len(ids)),
		allowedDomains: make([]string, 0, len(allowedDomains)),
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		c.ids = append(c.ids, id)
	}
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			c.allowedDomains = append(c.allowedDomains, d)
		}
	}
	return c
}

// DefaultCatalog returns the year x class catalog
func DefaultCatalog(allowedDomains ...string) *Catalog {
	ids := make([]string, 0, len(Years)*len(Classes))
	for _, year := range Years {
		for _, class := range Classes {
			ids = append(ids, year+class)
		}
	}
	return NewCatalog(ids, allowedDomains)
}

// IDs returns the cohort ids in catalog order
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Contains reports whether id is a known cohort, ignoring case
func (c *Catalog) Contains(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, known := range c.ids {
		if known == id {
			return true
		}
	}
	return false
}

// RoleName is the remote role name for a cohort
func RoleName(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Resolve scans groups for a recognized cohort group. It returns false when
// no group matches or when groups name more than one distinct cohort.
func (c *Catalog) Resolve(groups []Group) (string, bool) {
	var found string
	for _, g := range groups {
		id, ok := c.match(g.Mail)
		if !ok {
			continue
		}
		if found != "" && found != id {
			return "", false
		}
		found = id
	}
	return found, found != ""
}

func (c *Catalog) match(mail string) (string, bool) {
	if mail == "" {
		return "", false
	}
	local, domain, _ := strings.Cut(mail, "@")
	local = strings.ToLower(strings.TrimSpace(local))
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !c.domainAllowed(domain) {
		return "", false
	}
	for _, id := range c.ids {
		if id == local {
			return id, true
		}
	}
	return "", false
}

func (c *Catalog) domainAllowed(domain string) bool {
	if len(c.allowedDomains) == 0 {
		return true
	}
	for _, d := range c.allowedDomains {
		if d == domain {
			return true
		}
	}
	return false
}
