package user

import "strings"

// Decision is the outcome of a capability check.
type Decision struct {
	Allowed bool
	Reason  string
}

var (
	allow            = Decision{Allowed: true}
	denyAnonymous    = Decision{Reason: "user not authenticated"}
	denyInsufficient = Decision{Reason: "permission denied"}
)

// Authorize checks that the identity holds at least one of roles.
// Roles match by prefix, so RoleAdmin grants access to "admin:owner" too. No roles means any authenticated identity.
func Authorize(id Identity, roles ...string) Decision {
	if id.ID == "" {
		return denyAnonymous
	}
	if len(roles) == 0 {
		return allow
	}
	for _, want := range roles {
		for _, have := range id.Roles {
			if strings.HasPrefix(have, want) {
				return allow
			}
		}
	}
	return denyInsufficient
}

// AuthorizeOwner allows the student owning the resource, or any of roles.
func AuthorizeOwner(id Identity, ownerID string, roles ...string) Decision {
	if id.ID == "" {
		return denyAnonymous
	}
	if id.ID == ownerID {
		return allow
	}
	if len(roles) == 0 {
		return denyInsufficient
	}
	return Authorize(id, roles...)
}
