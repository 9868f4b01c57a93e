package access

// Scope is the record visibility a caller has over a resource:
// everything, only records they created, or nothing.
type Scope struct {
	All bool
	Own bool
}

// None reports whether the caller may not see any record at all.
func (s Scope) None() bool {
	return !s.All && !s.Own
}

// ResolveScope derives the caller's visibility over a resource. Full
// visibility comes from the resource wildcard or an explicit read grant;
// own-only visibility from the "own" grant.
func ResolveScope(perms Set, resource string) Scope {
	return Scope{
		All: perms.AllowsAny(
			Permission{Resource: resource, Action: ActionWildcard},
			Permission{Resource: resource, Action: ActionRead},
		),
		Own: perms.Allows(Permission{Resource: resource, Action: ActionOwn}),
	}
}
