package access

import "testing"

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "quotes", ":read", "quotes:", "   "} {
		if _, ok := Parse(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestExactMatch(t *testing.T) {
	set := NewSet([]string{"quotes:read"})
	if !set.Allows(Permission{Resource: "quotes", Action: ActionRead}) {
		t.Fatal("exact grant should match")
	}
	if set.Allows(Permission{Resource: "quotes", Action: ActionDelete}) {
		t.Fatal("read grant must not cover delete")
	}
	if set.Allows(Permission{Resource: "contacts", Action: ActionRead}) {
		t.Fatal("grant must not leak across resources")
	}
}

func TestResourceWildcard(t *testing.T) {
	set := NewSet([]string{"quotes:*"})
	for _, action := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionWildcard} {
		if !set.Allows(Permission{Resource: "quotes", Action: action}) {
			t.Fatalf("quotes:* should cover quotes:%s", action)
		}
	}
	if set.Allows(Permission{Resource: "contacts", Action: ActionRead}) {
		t.Fatal("quotes:* must not cover contacts")
	}
}

func TestGlobalWildcard(t *testing.T) {
	set := NewSet([]string{"all:*"})
	if !set.Allows(Permission{Resource: "quotes", Action: ActionDelete}) {
		t.Fatal("all:* should cover everything")
	}
	if !set.Allows(Permission{Resource: "quotes", Action: ActionWildcard}) {
		t.Fatal("all:* should satisfy a resource wildcard request")
	}
}

func TestReadGrantDoesNotSatisfyWildcardRequest(t *testing.T) {
	set := NewSet([]string{"quotes:read"})
	if set.Allows(Permission{Resource: "quotes", Action: ActionWildcard}) {
		t.Fatal("quotes:read must not satisfy a quotes:* request")
	}
}

func TestResolveScope(t *testing.T) {
	cases := []struct {
		name  string
		perms []string
		want  Scope
	}{
		{"admin", []string{"all:*"}, Scope{All: true, Own: false}},
		{"full resource", []string{"quotes:*"}, Scope{All: true, Own: false}},
		{"explicit read", []string{"quotes:read"}, Scope{All: true, Own: false}},
		{"own only", []string{"quotes:own"}, Scope{All: false, Own: true}},
		{"unrelated", []string{"contacts:read"}, Scope{}},
		{"none", nil, Scope{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveScope(NewSet(tc.perms), "quotes")
			if got != tc.want {
				t.Fatalf("scope %+v, want %+v", got, tc.want)
			}
			if got.None() != (tc.want == Scope{}) {
				t.Fatalf("None() inconsistent for %+v", got)
			}
		})
	}
}
