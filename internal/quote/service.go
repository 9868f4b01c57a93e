package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agromaq/crm-api/internal/access"
	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
	"github.com/agromaq/crm-api/internal/obs"
)

// Resource is the permission resource name of the quote subsystem.
const Resource = "quotes"

const (
	noteCreated      = "Cotizacion creada"
	noteStatusChange = "Cambio de estado"

	msgNoPermission     = "Sin permisos"
	msgQuoteNotFound    = "Cotizacion no encontrada"
	msgAnchorRequired   = "Selecciona un cliente u oportunidad"
	msgOppNotFound      = "Oportunidad no encontrada"
	msgMissingReference = "Alguna referencia seleccionada no existe"
)

// numberAttempts bounds retries when two requests derive the same quote
// number; the unique index turns the loser into a retry.
const numberAttempts = 3

var wildcardPerm = access.Permission{Resource: Resource, Action: access.ActionWildcard}

// Service implements the quote lifecycle on top of a Store. All monetary
// fields are recomputed server-side on every write.
type Service struct {
	store          Store
	logger         zerolog.Logger
	now            func() time.Time
	defaultTaxRate float64
}

func NewService(store Store, logger zerolog.Logger, defaultTaxRate float64) *Service {
	return &Service{
		store:          store,
		logger:         logger.With().Str("component", "quote").Logger(),
		now:            time.Now,
		defaultTaxRate: defaultTaxRate,
	}
}

// ListInput narrows the quote list. Zero values mean "no filter".
type ListInput struct {
	Search        string
	Status        string
	ContactID     string
	AccountID     string
	OpportunityID string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// CreateInput is a new quote as accepted from the caller. Totals are
// never part of the input.
type CreateInput struct {
	Title         string
	Status        *Status
	Discount      *float64
	TaxRate       *float64
	Notes         *string
	ContactID     *string
	AccountID     *string
	OpportunityID *string
	Items         []RawItem
}

// RelationInput is a three-state link instruction: absent leaves the
// link untouched, an empty or null id clears it, a concrete id sets it.
type RelationInput struct {
	Present bool
	ID      *string
}

func (r RelationInput) patch() RelationPatch {
	if !r.Present {
		return RelationPatch{Op: RelationUnchanged}
	}
	if r.ID == nil || *r.ID == "" {
		return RelationPatch{Op: RelationClear}
	}
	return RelationPatch{Op: RelationSet, ID: *r.ID}
}

// UpdateInput is a partial patch; nil scalar fields keep existing values
// and a nil item slice keeps the existing item set.
type UpdateInput struct {
	Title        *string
	Status       *Status
	Discount     *float64
	TaxRate      *float64
	Notes        *string
	Contact      RelationInput
	Account      RelationInput
	Opportunity  RelationInput
	Items        []RawItem
	ItemsPresent bool
}

// List returns the quotes visible to the principal. Own-scoped callers
// only ever see quotes they created, regardless of other filters.
func (s *Service) List(ctx context.Context, p auth.Principal, in ListInput) ([]Summary, int64, error) {
	scope := access.ResolveScope(p.Permissions, Resource)
	if scope.None() {
		return nil, 0, common.Forbidden(msgNoPermission)
	}

	filter := ListFilter{
		Search:        in.Search,
		ContactID:     in.ContactID,
		AccountID:     in.AccountID,
		OpportunityID: in.OpportunityID,
		From:          in.From,
		To:            in.To,
		Limit:         in.Limit,
		Offset:        in.Offset,
	}
	if !scope.All {
		filter.CreatedBy = &p.UserID
	}
	if in.Status != "" {
		status := Status(in.Status)
		if !status.Valid() {
			return nil, 0, common.Validation("estado desconocido", map[string]string{"status": in.Status})
		}
		filter.Status = &status
	}

	return s.store.ListQuotes(ctx, filter)
}

// Get loads one quote after the visibility check.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (Quote, error) {
	if err := s.canAccess(ctx, p, id); err != nil {
		return Quote{}, err
	}
	q, err := s.store.GetQuote(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Quote{}, common.NotFound(msgQuoteNotFound)
	}
	return q, err
}

// Create persists a new quote with server-derived number, totals, and
// initial status history.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (Quote, error) {
	if !p.Permissions.AllowsAny(
		access.Permission{Resource: Resource, Action: access.ActionCreate},
		wildcardPerm,
	) {
		return Quote{}, common.Forbidden(msgNoPermission)
	}

	status := StatusDraft
	if in.Status != nil {
		status = *in.Status
		if !status.Valid() {
			return Quote{}, common.Validation("estado desconocido", map[string]string{"status": string(status)})
		}
	}

	contactID := trimmedPtr(in.ContactID)
	accountID := trimmedPtr(in.AccountID)
	opportunityID := trimmedPtr(in.OpportunityID)
	if contactID == nil && accountID == nil && opportunityID == nil {
		return Quote{}, common.Validation(msgAnchorRequired, nil)
	}

	if opportunityID != nil {
		opp, err := s.store.GetOpportunityRef(ctx, *opportunityID)
		if errors.Is(err, ErrNotFound) {
			return Quote{}, common.Validation(msgOppNotFound, nil)
		}
		if err != nil {
			return Quote{}, err
		}
		if opp.AssignedTo != nil && *opp.AssignedTo != p.UserID && !p.Permissions.Allows(wildcardPerm) {
			return Quote{}, common.Forbidden(msgNoPermission)
		}
		if contactID == nil {
			contactID = opp.ContactID
		}
		if accountID == nil {
			accountID = opp.AccountID
		}
	}

	discount := 0.0
	if in.Discount != nil {
		discount = *in.Discount
	}
	taxRate := s.defaultTaxRate
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}

	items := NormalizeItems(in.Items)
	totals := ComputeTotals(lineInputs(items), discount, taxRate)

	now := s.now().UTC()
	params := CreateParams{
		Title:           in.Title,
		Status:          status,
		Subtotal:        totals.Subtotal,
		Discount:        discount,
		Tax:             taxRate,
		Total:           totals.Total,
		Notes:           in.Notes,
		ContactID:       contactID,
		AccountID:       accountID,
		OpportunityID:   opportunityID,
		CreatedBy:       p.UserID,
		StatusUpdatedAt: now,
		Items:           items,
		History:         HistoryParams{Status: status, Note: noteCreated, CreatedBy: p.UserID},
	}
	setMilestone(&params.SentAt, &params.NegotiatedAt, &params.AcceptedAt, &params.LostAt, status, now)

	id, err := s.createWithNumber(ctx, params, now.Year())
	if err != nil {
		if errors.Is(err, ErrReferenceMissing) {
			return Quote{}, common.Validation(msgMissingReference, nil)
		}
		return Quote{}, err
	}

	if obs.QuoteCreatedTotal != nil {
		obs.QuoteCreatedTotal.WithLabelValues(string(status)).Inc()
	}
	s.logger.Info().Str("quote_id", id).Str("status", string(status)).Msg("quote created")

	return s.store.GetQuote(ctx, id)
}

// createWithNumber allocates the next sequential number and retries when
// a concurrent creation wins the same number.
func (s *Service) createWithNumber(ctx context.Context, params CreateParams, year int) (string, error) {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		latest, err := s.store.LatestNumber(ctx, NumberPrefix(year))
		if err != nil {
			return "", err
		}
		number, err := NextNumber(latest, year)
		if err != nil {
			return "", err
		}
		params.Number = number

		id, err := s.store.CreateQuote(ctx, params)
		if errors.Is(err, ErrNumberConflict) {
			if obs.QuoteNumberConflictTotal != nil {
				obs.QuoteNumberConflictTotal.Inc()
			}
			s.logger.Warn().Str("number", number).Msg("quote number conflict, retrying")
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return "", fmt.Errorf("quote: number allocation exhausted after %d attempts", numberAttempts)
}

// Update applies a partial patch. Totals are always recomputed from the
// resulting item set and rates; a status change appends exactly one
// history entry and stamps the milestone timestamp on first arrival.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in UpdateInput) (Quote, error) {
	if err := s.canAccess(ctx, p, id); err != nil {
		return Quote{}, err
	}
	existing, err := s.store.GetQuote(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Quote{}, common.NotFound(msgQuoteNotFound)
	}
	if err != nil {
		return Quote{}, err
	}

	title := existing.Title
	if in.Title != nil {
		title = *in.Title
	}
	notes := existing.Notes
	if in.Notes != nil {
		notes = in.Notes
	}
	discount := existing.Discount
	if in.Discount != nil {
		discount = *in.Discount
	}
	taxRate := existing.Tax
	if in.TaxRate != nil {
		taxRate = *in.TaxRate
	}

	var items []Item
	inputs := lineInputs(existing.Items)
	if in.ItemsPresent {
		items = NormalizeItems(in.Items)
		inputs = lineInputs(items)
	}
	totals := ComputeTotals(inputs, discount, taxRate)

	params := UpdateParams{
		ID:           id,
		Title:        title,
		Notes:        notes,
		Subtotal:     totals.Subtotal,
		Discount:     discount,
		Tax:          taxRate,
		Total:        totals.Total,
		Contact:      in.Contact.patch(),
		Account:      in.Account.patch(),
		Opportunity:  in.Opportunity.patch(),
		ReplaceItems: in.ItemsPresent,
		Items:        items,
	}

	if in.Status != nil && !in.Status.Valid() {
		return Quote{}, common.Validation("estado desconocido", map[string]string{"status": string(*in.Status)})
	}
	statusChanged := in.Status != nil && *in.Status != existing.Status
	if statusChanged {
		status := *in.Status
		now := s.now().UTC()
		params.Status = &status
		params.StatusUpdatedAt = &now
		if existing.milestone(status) == nil {
			setMilestone(&params.SentAt, &params.NegotiatedAt, &params.AcceptedAt, &params.LostAt, status, now)
		}
		params.History = &HistoryParams{Status: status, Note: noteStatusChange, CreatedBy: p.UserID}
	}

	if params.Opportunity.Op == RelationSet {
		if _, err := s.store.GetOpportunityRef(ctx, params.Opportunity.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Quote{}, common.Validation(msgOppNotFound, nil)
			}
			return Quote{}, err
		}
	}

	if err := s.store.UpdateQuote(ctx, params); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return Quote{}, common.NotFound(msgQuoteNotFound)
		case errors.Is(err, ErrReferenceMissing):
			return Quote{}, common.Validation(msgMissingReference, nil)
		}
		return Quote{}, err
	}

	if statusChanged {
		if obs.QuoteTransitionTotal != nil {
			obs.QuoteTransitionTotal.WithLabelValues(string(existing.Status), string(*in.Status)).Inc()
		}
		s.logger.Info().
			Str("quote_id", id).
			Str("from", string(existing.Status)).
			Str("to", string(*in.Status)).
			Msg("quote status changed")
	}

	return s.store.GetQuote(ctx, id)
}

// Delete removes a quote and everything it owns. Deleting a quote that
// is already gone is not an error.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	if err := s.canAccess(ctx, p, id); err != nil {
		return err
	}
	if err := s.store.DeleteQuote(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if obs.QuoteDeletedTotal != nil {
		obs.QuoteDeletedTotal.Inc()
	}
	s.logger.Info().Str("quote_id", id).Msg("quote deleted")
	return nil
}

// canAccess enforces record visibility. Own-scoped callers are denied
// with 403 even when the quote does not exist, so existence is never
// revealed to callers who could not read it anyway.
func (s *Service) canAccess(ctx context.Context, p auth.Principal, id string) error {
	scope := access.ResolveScope(p.Permissions, Resource)
	if scope.All {
		return nil
	}
	if !scope.Own {
		return common.Forbidden(msgNoPermission)
	}
	owner, err := s.store.GetQuoteOwner(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return common.Forbidden(msgNoPermission)
	}
	if err != nil {
		return err
	}
	if owner != p.UserID {
		return common.Forbidden(msgNoPermission)
	}
	return nil
}

// setMilestone assigns the milestone timestamp slot matching the status.
func setMilestone(sent, negotiated, accepted, lost **time.Time, status Status, at time.Time) {
	switch status {
	case StatusSent:
		*sent = &at
	case StatusNegotiation:
		*negotiated = &at
	case StatusAccepted:
		*accepted = &at
	case StatusLost:
		*lost = &at
	}
}

func trimmedPtr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
