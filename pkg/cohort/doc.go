// Package cohort resolves a subject's class cohort from the group
// memberships reported by the identity provider.
//
// A cohort group is recognized by its mail address: the local part is the
// cohort id (for example "2a") and the domain part must be one of the
// allowed school domains.
//
//	catalog := cohort.DefaultCatalog("school.example")
//	id, ok := catalog.Resolve(profile.Groups)
package cohort
