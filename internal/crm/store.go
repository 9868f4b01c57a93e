package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ref is a minimal summary of a related entity.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Contact is the picker representation of a person.
type Contact struct {
	ID       string  `json:"id"`
	FullName string  `json:"fullName"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Whatsapp *string `json:"whatsapp"`
	Account  *Ref    `json:"account"`
}

// Account is the picker representation of a company.
type Account struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     *string `json:"type"`
	Province *string `json:"province"`
	City     *string `json:"city"`
}

// Opportunity is the picker representation of a deal in flight.
type Opportunity struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Value       *float64 `json:"value"`
	ContactName *string  `json:"contactName"`
	AccountName *string  `json:"accountName"`
}

// OpportunityFilter narrows the opportunity list.
type OpportunityFilter struct {
	Search     string
	AssignedTo *string
	Limit      int
}

// Store is the persistence boundary for CRM picker lists.
type Store interface {
	ListContacts(ctx context.Context, search string, limit, offset int) ([]Contact, int64, error)
	ListAccounts(ctx context.Context, search string, limit int) ([]Account, error)
	ListOpportunities(ctx context.Context, f OpportunityFilter) ([]Opportunity, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ListContacts(ctx context.Context, search string, limit, offset int) ([]Contact, int64, error) {
	where := ""
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		where = ` WHERE c.full_name ILIKE $1 OR c.email ILIKE $1 OR c.phone ILIKE $1 OR c.whatsapp ILIKE $1 OR a.name ILIKE $1`
	}
	base := ` FROM contacts c LEFT JOIN accounts a ON a.id = c.account_id` + where

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*)"+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	query := `SELECT c.id::text, c.full_name, c.email, c.phone, c.whatsapp, c.account_id::text, a.name` +
		base + fmt.Sprintf(" ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var (
			c                      Contact
			accountID, accountName *string
		)
		if err := rows.Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Whatsapp, &accountID, &accountName); err != nil {
			return nil, 0, fmt.Errorf("scan contact: %w", err)
		}
		if accountID != nil {
			ref := Ref{ID: *accountID}
			if accountName != nil {
				ref.Name = *accountName
			}
			c.Account = &ref
		}
		contacts = append(contacts, c)
	}
	return contacts, total, rows.Err()
}

func (s *PGStore) ListAccounts(ctx context.Context, search string, limit int) ([]Account, error) {
	query := `SELECT id::text, name, type, province, city FROM accounts`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Province, &a.City); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PGStore) ListOpportunities(ctx context.Context, f OpportunityFilter) ([]Opportunity, error) {
	where := []string{}
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(o.title ILIKE $%d OR c.full_name ILIKE $%[1]d)", len(args)))
	}
	if f.AssignedTo != nil {
		args = append(args, *f.AssignedTo)
		where = append(where, fmt.Sprintf("o.assigned_to = $%d::uuid", len(args)))
	}

	query := `
		SELECT o.id::text, o.title, o.value, c.full_name, a.name
		FROM opportunities o
		LEFT JOIN contacts c ON c.id = o.contact_id
		LEFT JOIN accounts a ON a.id = o.account_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY o.created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, f.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	opportunities := []Opportunity{}
	for rows.Next() {
		var o Opportunity
		if err := rows.Scan(&o.ID, &o.Title, &o.Value, &o.ContactName, &o.AccountName); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		opportunities = append(opportunities, o)
	}
	return opportunities, rows.Err()
}
