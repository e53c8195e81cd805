// Package identity holds the durable records of the login pipeline and
// their SQL storage: identities, archived identities and pending
// authentication requests.
//
// Email is unique among identities by convention only: the most recently
// confirmed subject owns an email, and the previous owner is archived.
package identity
