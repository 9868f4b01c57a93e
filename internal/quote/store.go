package quote

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the quote (or referenced entity) does not exist.
	ErrNotFound = errors.New("quote: not found")
	// ErrNumberConflict indicates the allocated quote number was taken by a
	// concurrent creation; the caller re-derives and retries.
	ErrNumberConflict = errors.New("quote: number already taken")
	// ErrReferenceMissing indicates a linked contact, account, opportunity,
	// or product does not exist.
	ErrReferenceMissing = errors.New("quote: referenced entity does not exist")
)

// RelationOp is a three-state update instruction for a relation field.
type RelationOp int

const (
	// RelationUnchanged leaves the link as it is.
	RelationUnchanged RelationOp = iota
	// RelationSet links the quote to the given entity.
	RelationSet
	// RelationClear removes the link.
	RelationClear
)

// RelationPatch applies one relation instruction during an update.
type RelationPatch struct {
	Op RelationOp
	ID string
}

// HistoryParams describes one status history entry to append.
type HistoryParams struct {
	Status    Status
	Note      string
	CreatedBy string
}

// CreateParams carries everything needed to persist a new quote, its
// items, and the initial history entry in one transaction.
type CreateParams struct {
	Number          string
	Title           string
	Status          Status
	Subtotal        float64
	Discount        float64
	Tax             float64
	Total           float64
	Notes           *string
	ContactID       *string
	AccountID       *string
	OpportunityID   *string
	CreatedBy       string
	StatusUpdatedAt time.Time
	SentAt          *time.Time
	NegotiatedAt    *time.Time
	AcceptedAt      *time.Time
	LostAt          *time.Time
	Items           []Item
	History         HistoryParams
}

// UpdateParams carries a fully resolved update: the service merges the
// patch with the existing record, so scalar fields here are final values.
// Milestone timestamps are written only when non-nil.
type UpdateParams struct {
	ID              string
	Title           string
	Notes           *string
	Subtotal        float64
	Discount        float64
	Tax             float64
	Total           float64
	Status          *Status
	StatusUpdatedAt *time.Time
	SentAt          *time.Time
	NegotiatedAt    *time.Time
	AcceptedAt      *time.Time
	LostAt          *time.Time
	Contact         RelationPatch
	Account         RelationPatch
	Opportunity     RelationPatch
	ReplaceItems    bool
	Items           []Item
	History         *HistoryParams
}

// ListFilter narrows and pages the quote list.
type ListFilter struct {
	CreatedBy     *string
	Search        string
	Status        *Status
	ContactID     string
	AccountID     string
	OpportunityID string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// OpportunityRef is the slice of an opportunity the quote lifecycle needs.
type OpportunityRef struct {
	ID         string
	Title      string
	ContactID  *string
	AccountID  *string
	AssignedTo *string
}

// Store is the persistence boundary of the quote subsystem. Create,
// update, and delete are atomic: item replacement, totals, and history
// never become visible half-applied.
type Store interface {
	LatestNumber(ctx context.Context, prefix string) (string, error)
	CreateQuote(ctx context.Context, arg CreateParams) (string, error)
	GetQuote(ctx context.Context, id string) (Quote, error)
	GetQuoteOwner(ctx context.Context, id string) (string, error)
	ListQuotes(ctx context.Context, f ListFilter) ([]Summary, int64, error)
	UpdateQuote(ctx context.Context, arg UpdateParams) error
	DeleteQuote(ctx context.Context, id string) error
	GetOpportunityRef(ctx context.Context, id string) (OpportunityRef, error)
}
