package quote

import "time"

// Status enumerates the lifecycle states of a quote. The wire values are
// the Spanish labels the product has always exposed.
type Status string

const (
	StatusDraft       Status = "BORRADOR"
	StatusSent        Status = "ENVIADA"
	StatusNegotiation Status = "NEGOCIACION"
	StatusAccepted    Status = "ACEPTADA"
	StatusLost        Status = "PERDIDA"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusNegotiation, StatusAccepted, StatusLost:
		return true
	}
	return false
}

// Ref is a minimal summary of a related entity.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is one priced line of a quote. Items are owned by their quote and
// fully replaced whenever an update supplies a new item list.
type Item struct {
	ID          string   `json:"id,omitempty"`
	ProductID   *string  `json:"productId"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   float64  `json:"unitPrice"`
	Discount    float64  `json:"discount"`
	Total       float64  `json:"total"`
	Position    int      `json:"position"`
}

// HistoryEntry is one immutable record of a status value reached.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	CreatedBy Ref       `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Quote is a priced commercial proposal. Monetary fields are always
// derived from the items, never trusted from client input.
type Quote struct {
	ID              string         `json:"id"`
	Number          string         `json:"number"`
	Title           string         `json:"title"`
	Status          Status         `json:"status"`
	Subtotal        float64        `json:"subtotal"`
	Discount        float64        `json:"discount"`
	Tax             float64        `json:"tax"`
	Total           float64        `json:"total"`
	Notes           *string        `json:"notes"`
	Contact         *Ref           `json:"contact"`
	Account         *Ref           `json:"account"`
	Opportunity     *Ref           `json:"opportunity"`
	CreatedBy       Ref            `json:"createdBy"`
	StatusUpdatedAt time.Time      `json:"statusUpdatedAt"`
	SentAt          *time.Time     `json:"sentAt"`
	NegotiatedAt    *time.Time     `json:"negotiatedAt"`
	AcceptedAt      *time.Time     `json:"acceptedAt"`
	LostAt          *time.Time     `json:"lostAt"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Items           []Item         `json:"items"`
	History         []HistoryEntry `json:"statusHistory,omitempty"`
}

// Summary is the list representation of a quote.
type Summary struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	Subtotal    float64   `json:"subtotal"`
	Discount    float64   `json:"discount"`
	Tax         float64   `json:"tax"`
	Total       float64   `json:"total"`
	Contact     *Ref      `json:"contact"`
	Account     *Ref      `json:"account"`
	Opportunity *Ref      `json:"opportunity"`
	CreatedAt   time.Time `json:"createdAt"`
}

// milestone returns a pointer to the quote's milestone timestamp for the
// given status, or nil when the status has no dedicated timestamp.
func (q *Quote) milestone(s Status) *time.Time {
	switch s {
	case StatusSent:
		return q.SentAt
	case StatusNegotiation:
		return q.NegotiatedAt
	case StatusAccepted:
		return q.AcceptedAt
	case StatusLost:
		return q.LostAt
	}
	return nil
}
