package quote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agromaq/crm-api/internal/access"
	"github.com/agromaq/crm-api/internal/auth"
	"github.com/agromaq/crm-api/internal/common"
)

// fakeStore keeps quotes in memory and lets tests inject number
// conflicts to exercise the retry path.
type fakeStore struct {
	quotes        map[string]*Quote
	opportunities map[string]OpportunityRef
	seq           int
	createCalls   int
	conflictsLeft int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		quotes:        map[string]*Quote{},
		opportunities: map[string]OpportunityRef{},
	}
}

func (f *fakeStore) LatestNumber(_ context.Context, prefix string) (string, error) {
	latest := ""
	for _, q := range f.quotes {
		if strings.HasPrefix(q.Number, prefix) && q.Number > latest {
			latest = q.Number
		}
	}
	return latest, nil
}

func (f *fakeStore) CreateQuote(_ context.Context, arg CreateParams) (string, error) {
	f.createCalls++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return "", ErrNumberConflict
	}
	for _, q := range f.quotes {
		if q.Number == arg.Number {
			return "", ErrNumberConflict
		}
	}
	f.seq++
	id := fmt.Sprintf("quote-%d", f.seq)
	q := &Quote{
		ID:              id,
		Number:          arg.Number,
		Title:           arg.Title,
		Status:          arg.Status,
		Subtotal:        arg.Subtotal,
		Discount:        arg.Discount,
		Tax:             arg.Tax,
		Total:           arg.Total,
		Notes:           arg.Notes,
		CreatedBy:       Ref{ID: arg.CreatedBy},
		StatusUpdatedAt: arg.StatusUpdatedAt,
		SentAt:          arg.SentAt,
		NegotiatedAt:    arg.NegotiatedAt,
		AcceptedAt:      arg.AcceptedAt,
		LostAt:          arg.LostAt,
		CreatedAt:       arg.StatusUpdatedAt,
		UpdatedAt:       arg.StatusUpdatedAt,
		Items:           arg.Items,
		History: []HistoryEntry{{
			Status:    arg.History.Status,
			Note:      arg.History.Note,
			CreatedBy: Ref{ID: arg.History.CreatedBy},
			CreatedAt: arg.StatusUpdatedAt,
		}},
	}
	if arg.ContactID != nil {
		q.Contact = &Ref{ID: *arg.ContactID}
	}
	if arg.AccountID != nil {
		q.Account = &Ref{ID: *arg.AccountID}
	}
	if arg.OpportunityID != nil {
		q.Opportunity = &Ref{ID: *arg.OpportunityID}
	}
	f.quotes[id] = q
	return id, nil
}

func (f *fakeStore) GetQuote(_ context.Context, id string) (Quote, error) {
	q, ok := f.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	return *q, nil
}

func (f *fakeStore) GetQuoteOwner(_ context.Context, id string) (string, error) {
	q, ok := f.quotes[id]
	if !ok {
		return "", ErrNotFound
	}
	return q.CreatedBy.ID, nil
}

func (f *fakeStore) ListQuotes(_ context.Context, filter ListFilter) ([]Summary, int64, error) {
	out := []Summary{}
	for _, q := range f.quotes {
		if filter.CreatedBy != nil && q.CreatedBy.ID != *filter.CreatedBy {
			continue
		}
		out = append(out, Summary{ID: q.ID, Number: q.Number, Title: q.Title, Status: q.Status, Total: q.Total})
	}
	return out, int64(len(out)), nil
}

func applyRelation(target **Ref, patch RelationPatch) {
	switch patch.Op {
	case RelationSet:
		*target = &Ref{ID: patch.ID}
	case RelationClear:
		*target = nil
	}
}

func (f *fakeStore) UpdateQuote(_ context.Context, arg UpdateParams) error {
	q, ok := f.quotes[arg.ID]
	if !ok {
		return ErrNotFound
	}
	q.Title = arg.Title
	q.Notes = arg.Notes
	q.Subtotal = arg.Subtotal
	q.Discount = arg.Discount
	q.Tax = arg.Tax
	q.Total = arg.Total
	if arg.Status != nil {
		q.Status = *arg.Status
	}
	if arg.StatusUpdatedAt != nil {
		q.StatusUpdatedAt = *arg.StatusUpdatedAt
	}
	if arg.SentAt != nil {
		q.SentAt = arg.SentAt
	}
	if arg.NegotiatedAt != nil {
		q.NegotiatedAt = arg.NegotiatedAt
	}
	if arg.AcceptedAt != nil {
		q.AcceptedAt = arg.AcceptedAt
	}
	if arg.LostAt != nil {
		q.LostAt = arg.LostAt
	}
	applyRelation(&q.Contact, arg.Contact)
	applyRelation(&q.Account, arg.Account)
	applyRelation(&q.Opportunity, arg.Opportunity)
	if arg.ReplaceItems {
		q.Items = arg.Items
	}
	if arg.History != nil {
		q.History = append([]HistoryEntry{{
			Status:    arg.History.Status,
			Note:      arg.History.Note,
			CreatedBy: Ref{ID: arg.History.CreatedBy},
		}}, q.History...)
	}
	return nil
}

func (f *fakeStore) DeleteQuote(_ context.Context, id string) error {
	delete(f.quotes, id)
	return nil
}

func (f *fakeStore) GetOpportunityRef(_ context.Context, id string) (OpportunityRef, error) {
	opp, ok := f.opportunities[id]
	if !ok {
		return OpportunityRef{}, ErrNotFound
	}
	return opp, nil
}

func principal(userID string, perms ...string) auth.Principal {
	return auth.Principal{UserID: userID, Permissions: access.NewSet(perms)}
}

func newTestService(store Store, at time.Time) *Service {
	svc := NewService(store, zerolog.Nop(), 12)
	svc.now = func() time.Time { return at }
	return svc
}

func requireAppCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	appErr, ok := common.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code)
	require.Equal(t, status, appErr.HTTPStatus)
}

var baseTime = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func basicCreate() CreateInput {
	contact := "c0ffee00-0000-0000-0000-000000000001"
	return CreateInput{
		Title:     "Rastra de discos TATU",
		ContactID: &contact,
		Items: []RawItem{
			{Description: "Rastra 24 discos", Quantity: 2, UnitPrice: 1500},
			{Description: "Flete", Quantity: 1, UnitPrice: 500},
		},
	}
}

func TestCreateRequiresAnchor(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)

	in := basicCreate()
	in.ContactID = nil

	_, err := svc.Create(context.Background(), principal("u1", "quotes:create"), in)
	requireAppCode(t, err, "VALIDATION", http.StatusBadRequest)
	require.Zero(t, store.createCalls, "nothing should be persisted")
}

func TestCreateRequiresPermission(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)

	_, err := svc.Create(context.Background(), principal("u1", "quotes:read"), basicCreate())
	requireAppCode(t, err, "FORBIDDEN", http.StatusForbidden)
}

func TestCreateDerivesNumberAndTotals(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)
	require.Equal(t, "QT-2025-0001", q.Number)
	require.Equal(t, StatusDraft, q.Status)
	require.Equal(t, 3500.0, q.Subtotal)
	require.InDelta(t, 3920.0, q.Total, 1e-9)
	require.Equal(t, 12.0, q.Tax)
	require.Len(t, q.History, 1)
	require.Equal(t, "Cotizacion creada", q.History[0].Note)
	require.Nil(t, q.SentAt)

	second, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)
	require.Equal(t, "QT-2025-0002", second.Number)
}

func TestCreateRetriesOnNumberConflict(t *testing.T) {
	store := newFakeStore()
	store.conflictsLeft = 2
	svc := newTestService(store, baseTime)

	q, err := svc.Create(context.Background(), principal("u1", "quotes:create"), basicCreate())
	require.NoError(t, err)
	require.Equal(t, "QT-2025-0001", q.Number)
	require.Equal(t, 3, store.createCalls)
}

func TestCreateGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := newFakeStore()
	store.conflictsLeft = 10
	svc := newTestService(store, baseTime)

	_, err := svc.Create(context.Background(), principal("u1", "quotes:create"), basicCreate())
	require.Error(t, err)
	require.Equal(t, numberAttempts, store.createCalls)
}

func TestCreateInitialMilestone(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)

	in := basicCreate()
	sent := StatusSent
	in.Status = &sent

	q, err := svc.Create(context.Background(), principal("u1", "quotes:create"), in)
	require.NoError(t, err)
	require.Equal(t, StatusSent, q.Status)
	require.NotNil(t, q.SentAt)
	require.Equal(t, baseTime, *q.SentAt)
	require.Equal(t, baseTime, q.StatusUpdatedAt)
}

func TestCreateOpportunityGate(t *testing.T) {
	store := newFakeStore()
	contact := "c0ffee00-0000-0000-0000-000000000001"
	account := "acc00000-0000-0000-0000-000000000001"
	assigned := "other-user"
	store.opportunities["opp-1"] = OpportunityRef{
		ID: "opp-1", Title: "Renovacion flota", ContactID: &contact, AccountID: &account, AssignedTo: &assigned,
	}
	svc := newTestService(store, baseTime)

	oppID := "opp-1"
	in := basicCreate()
	in.ContactID = nil
	in.OpportunityID = &oppID

	_, err := svc.Create(context.Background(), principal("u1", "quotes:create"), in)
	requireAppCode(t, err, "FORBIDDEN", http.StatusForbidden)

	q, err := svc.Create(context.Background(), principal("u1", "quotes:*"), in)
	require.NoError(t, err)
	require.NotNil(t, q.Contact)
	require.Equal(t, contact, q.Contact.ID)
	require.NotNil(t, q.Account)
	require.Equal(t, account, q.Account.ID)
}

func TestCreateUnknownOpportunity(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)

	oppID := "missing"
	in := basicCreate()
	in.ContactID = nil
	in.OpportunityID = &oppID

	_, err := svc.Create(context.Background(), principal("u1", "quotes:create"), in)
	requireAppCode(t, err, "VALIDATION", http.StatusBadRequest)
}

func TestOwnScopeIsolation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)

	creator := principal("alice", "quotes:create", "quotes:own")
	q, err := svc.Create(context.Background(), creator, basicCreate())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), creator, q.ID)
	require.NoError(t, err)

	stranger := principal("bob", "quotes:own")
	_, err = svc.Get(context.Background(), stranger, q.ID)
	requireAppCode(t, err, "FORBIDDEN", http.StatusForbidden)

	list, total, err := svc.List(context.Background(), stranger, ListInput{Limit: 10})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, list)

	admin := principal("carol", "quotes:read")
	_, total, err = svc.List(context.Background(), admin, ListInput{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestListWithoutScope(t *testing.T) {
	svc := newTestService(newFakeStore(), baseTime)
	_, _, err := svc.List(context.Background(), principal("u1", "contacts:read"), ListInput{Limit: 10})
	requireAppCode(t, err, "FORBIDDEN", http.StatusForbidden)
}

func TestUpdateStatusChangeAppendsHistory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read", "quotes:update")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)
	require.Len(t, q.History, 1)

	later := baseTime.Add(2 * time.Hour)
	svc.now = func() time.Time { return later }

	sent := StatusSent
	updated, err := svc.Update(context.Background(), p, q.ID, UpdateInput{Status: &sent})
	require.NoError(t, err)
	require.Equal(t, StatusSent, updated.Status)
	require.Len(t, updated.History, 2)
	require.Equal(t, "Cambio de estado", updated.History[0].Note)
	require.Equal(t, later, updated.StatusUpdatedAt)
	require.NotNil(t, updated.SentAt)
	require.Equal(t, later, *updated.SentAt)
}

func TestUpdateMilestoneStampsOnlyOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)

	firstSend := baseTime.Add(time.Hour)
	svc.now = func() time.Time { return firstSend }
	sent := StatusSent
	_, err = svc.Update(context.Background(), p, q.ID, UpdateInput{Status: &sent})
	require.NoError(t, err)

	svc.now = func() time.Time { return baseTime.Add(48 * time.Hour) }
	draft := StatusDraft
	_, err = svc.Update(context.Background(), p, q.ID, UpdateInput{Status: &draft})
	require.NoError(t, err)

	reSent := baseTime.Add(72 * time.Hour)
	svc.now = func() time.Time { return reSent }
	updated, err := svc.Update(context.Background(), p, q.ID, UpdateInput{Status: &sent})
	require.NoError(t, err)
	require.NotNil(t, updated.SentAt)
	require.Equal(t, firstSend, *updated.SentAt, "milestone keeps its first timestamp")
	require.Equal(t, reSent, updated.StatusUpdatedAt)
}

func TestUpdateWithoutStatusChangeKeepsHistory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)

	title := "Rastra de discos TATU (revisada)"
	updated, err := svc.Update(context.Background(), p, q.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, StatusDraft, updated.Status)
	require.Len(t, updated.History, 1)

	same := StatusDraft
	updated, err = svc.Update(context.Background(), p, q.ID, UpdateInput{Status: &same})
	require.NoError(t, err)
	require.Len(t, updated.History, 1, "same-status patch appends nothing")
}

func TestUpdateRecomputesTotals(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)
	require.InDelta(t, 3920.0, q.Total, 1e-9)

	zero := 0.0
	updated, err := svc.Update(context.Background(), p, q.ID, UpdateInput{TaxRate: &zero})
	require.NoError(t, err)
	require.Equal(t, 3500.0, updated.Subtotal)
	require.Equal(t, 3500.0, updated.Total)

	// Item replacement recomputes from the new set.
	updated, err = svc.Update(context.Background(), p, q.ID, UpdateInput{
		ItemsPresent: true,
		Items:        []RawItem{{Description: "Solo flete", Quantity: 1, UnitPrice: 500}},
	})
	require.NoError(t, err)
	require.Equal(t, 500.0, updated.Subtotal)
	require.Len(t, updated.Items, 1)
	require.Equal(t, 0, updated.Items[0].Position)
}

func TestUpdateSameItemsKeepsTotals(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)

	// Resubmitting the exact item list replaces the rows but changes
	// nothing observable.
	updated, err := svc.Update(context.Background(), p, q.ID, UpdateInput{
		ItemsPresent: true,
		Items:        basicCreate().Items,
	})
	require.NoError(t, err)
	require.Equal(t, q.Subtotal, updated.Subtotal)
	require.Equal(t, q.Total, updated.Total)
	require.Len(t, updated.Items, len(q.Items))
	for i, it := range updated.Items {
		require.Equal(t, q.Items[i].Total, it.Total)
		require.Equal(t, q.Items[i].Position, it.Position)
	}
}

func TestUpdateRelationsThreeState(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)
	require.NotNil(t, q.Contact)

	// Omitted relation stays untouched.
	title := "sin cambios de relaciones"
	updated, err := svc.Update(context.Background(), p, q.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, updated.Contact)

	// Explicit null clears the link.
	updated, err = svc.Update(context.Background(), p, q.ID, UpdateInput{
		Contact: RelationInput{Present: true, ID: nil},
	})
	require.NoError(t, err)
	require.Nil(t, updated.Contact)

	// A concrete id sets it.
	account := "acc00000-0000-0000-0000-000000000009"
	updated, err = svc.Update(context.Background(), p, q.ID, UpdateInput{
		Account: RelationInput{Present: true, ID: &account},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Account)
	require.Equal(t, account, updated.Account.ID)
}

func TestUpdateUnknownOpportunity(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)

	missing := "nope"
	_, err = svc.Update(context.Background(), p, q.ID, UpdateInput{
		Opportunity: RelationInput{Present: true, ID: &missing},
	})
	requireAppCode(t, err, "VALIDATION", http.StatusBadRequest)
}

func TestDeleteIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read", "quotes:delete")

	q, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), p, q.ID))
	require.NoError(t, svc.Delete(context.Background(), p, q.ID))

	_, err = svc.Get(context.Background(), p, q.ID)
	requireAppCode(t, err, "NOT_FOUND", http.StatusNotFound)
}

func TestIdenticalItemsYieldIdenticalTotals(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, baseTime)
	p := principal("u1", "quotes:create", "quotes:read")

	first, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), p, basicCreate())
	require.NoError(t, err)

	require.Equal(t, first.Subtotal, second.Subtotal)
	require.Equal(t, first.Total, second.Total)
	require.Len(t, second.Items, len(first.Items))
}
