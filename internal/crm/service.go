package crm

import (
	"context"

	"github.com/agromaq/crm-api/internal/access"
	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

const (
	accountListLimit     = 50
	opportunityListLimit = 100
)

// Service exposes the picker lists that quote forms are built from.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func allowsRead(p auth.Principal, resource string) bool {
	return p.Permissions.AllowsAny(
		access.Permission{Resource: resource, Action: access.ActionRead},
		access.Permission{Resource: resource, Action: access.ActionWildcard},
	)
}

// ListContacts returns a paged contact summary list.
func (s *Service) ListContacts(ctx context.Context, p auth.Principal, search string, limit, offset int) ([]Contact, int64, error) {
	if !allowsRead(p, "contacts") {
		return nil, 0, common.Forbidden("Sin permisos")
	}
	return s.store.ListContacts(ctx, search, limit, offset)
}

// ListAccounts returns company summaries. Account visibility rides on the
// contacts grant; there is no separate accounts permission.
func (s *Service) ListAccounts(ctx context.Context, p auth.Principal, search string) ([]Account, error) {
	if !allowsRead(p, "contacts") {
		return nil, common.Forbidden("Sin permisos")
	}
	return s.store.ListAccounts(ctx, search, accountListLimit)
}

// ListOpportunities returns deal summaries. Own-scoped callers only see
// opportunities assigned to them.
func (s *Service) ListOpportunities(ctx context.Context, p auth.Principal, search string) ([]Opportunity, error) {
	scope := access.ResolveScope(p.Permissions, "opportunities")
	if scope.None() {
		return nil, common.Forbidden("Sin permisos")
	}
	filter := OpportunityFilter{Search: search, Limit: opportunityListLimit}
	if !scope.All {
		filter.AssignedTo = &p.UserID
	}
	return s.store.ListOpportunities(ctx, filter)
}
