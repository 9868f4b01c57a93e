// Package access models permissions as structured (resource, action)
// pairs with explicit wildcard markers and provides pure matching,
// replacing string comparisons scattered through handlers.
package access

import "strings"

// Action describes the kind of operation a permission grants.
type Action string

// Actions understood by the matcher. Wildcard grants every action on the
// resource; Own grants access to records the caller created.
const (
	ActionRead     Action = "read"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionOwn      Action = "own"
	ActionWildcard Action = "*"
)

// ResourceWildcard marks a grant covering every resource ("all:*").
const ResourceWildcard = "all"

// Permission is one allowed action on a resource type.
type Permission struct {
	Resource string
	Action   Action
}

// Parse splits a "resource:action" string into a Permission.
// Malformed strings yield ok=false and never match anything.
func Parse(raw string) (Permission, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, false
	}
	return Permission{Resource: parts[0], Action: Action(parts[1])}, true
}

// String renders the permission back to its wire form.
func (p Permission) String() string {
	return p.Resource + ":" + string(p.Action)
}

// grants reports whether this granted permission satisfies the requested one.
func (p Permission) grants(requested Permission) bool {
	if p.Resource == ResourceWildcard && p.Action == ActionWildcard {
		return true
	}
	if p == requested {
		return true
	}
	return p.Resource == requested.Resource && p.Action == ActionWildcard
}

// Set is an immutable collection of granted permissions.
type Set struct {
	perms []Permission
}

// NewSet parses raw permission strings into a Set, dropping malformed entries.
func NewSet(raw []string) Set {
	perms := make([]Permission, 0, len(raw))
	for _, entry := range raw {
		if p, ok := Parse(entry); ok {
			perms = append(perms, p)
		}
	}
	return Set{perms: perms}
}

// Allows reports whether any grant in the set satisfies the requested permission.
func (s Set) Allows(requested Permission) bool {
	for _, p := range s.perms {
		if p.grants(requested) {
			return true
		}
	}
	return false
}

// AllowsAny reports whether at least one of the requested permissions is granted.
func (s Set) AllowsAny(requested ...Permission) bool {
	for _, r := range requested {
		if s.Allows(r) {
			return true
		}
	}
	return false
}

// Strings returns the wire form of every grant, mainly for logging.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p.String())
	}
	return out
}
