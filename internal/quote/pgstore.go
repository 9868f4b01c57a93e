package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on PostgreSQL via pgx.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// parseID validates a caller-supplied identifier before it reaches SQL so
// malformed ids read as "not found" rather than a cast error.
func parseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", ErrNotFound
	}
	return u.String(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *PGStore) LatestNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := s.pool.QueryRow(ctx,
		`SELECT number FROM quotes WHERE number LIKE $1 || '%' ORDER BY number DESC LIMIT 1`,
		prefix,
	).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest quote number: %w", err)
	}
	return number, nil
}

func (s *PGStore) CreateQuote(ctx context.Context, arg CreateParams) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin create quote: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO quotes (
			number, title, status, subtotal, discount, tax, total, notes,
			contact_id, account_id, opportunity_id, created_by,
			status_updated_at, sent_at, negotiated_at, accepted_at, lost_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::uuid, $10::uuid, $11::uuid, $12::uuid,
			$13, $14, $15, $16, $17
		) RETURNING id::text`,
		arg.Number, arg.Title, arg.Status, arg.Subtotal, arg.Discount, arg.Tax, arg.Total, arg.Notes,
		arg.ContactID, arg.AccountID, arg.OpportunityID, arg.CreatedBy,
		arg.StatusUpdatedAt, arg.SentAt, arg.NegotiatedAt, arg.AcceptedAt, arg.LostAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrNumberConflict
		}
		if isForeignKeyViolation(err) {
			return "", ErrReferenceMissing
		}
		return "", fmt.Errorf("insert quote: %w", err)
	}

	if err := insertItems(ctx, tx, id, arg.Items); err != nil {
		return "", err
	}
	if err := insertHistory(ctx, tx, id, arg.History); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit create quote: %w", err)
	}
	return id, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, quoteID string, items []Item) error {
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO quote_items (quote_id, product_id, description, quantity, unit_price, discount, total, position)
			VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8)`,
			quoteID, it.ProductID, it.Description, it.Quantity, it.UnitPrice, it.Discount, it.Total, it.Position,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrReferenceMissing
			}
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, quoteID string, h HistoryParams) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO quote_status_history (quote_id, status, note, created_by)
		VALUES ($1::uuid, $2, $3, $4::uuid)`,
		quoteID, h.Status, h.Note, h.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert quote history: %w", err)
	}
	return nil
}

func (s *PGStore) GetQuote(ctx context.Context, id string) (Quote, error) {
	qid, err := parseID(id)
	if err != nil {
		return Quote{}, err
	}

	var (
		q                                      Quote
		contactID, contactName                 *string
		accountID, accountName                 *string
		opportunityID, opportunityName         *string
		createdByID, createdByName             string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT q.id::text, q.number, q.title, q.status,
			q.subtotal, q.discount, q.tax, q.total, q.notes,
			q.contact_id::text, c.full_name,
			q.account_id::text, a.name,
			q.opportunity_id::text, o.title,
			q.created_by::text, u.name,
			q.status_updated_at, q.sent_at, q.negotiated_at, q.accepted_at, q.lost_at,
			q.created_at, q.updated_at
		FROM quotes q
		LEFT JOIN contacts c ON c.id = q.contact_id
		LEFT JOIN accounts a ON a.id = q.account_id
		LEFT JOIN opportunities o ON o.id = q.opportunity_id
		JOIN users u ON u.id = q.created_by
		WHERE q.id = $1::uuid`,
		qid,
	).Scan(
		&q.ID, &q.Number, &q.Title, &q.Status,
		&q.Subtotal, &q.Discount, &q.Tax, &q.Total, &q.Notes,
		&contactID, &contactName,
		&accountID, &accountName,
		&opportunityID, &opportunityName,
		&createdByID, &createdByName,
		&q.StatusUpdatedAt, &q.SentAt, &q.NegotiatedAt, &q.AcceptedAt, &q.LostAt,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, ErrNotFound
	}
	if err != nil {
		return Quote{}, fmt.Errorf("get quote: %w", err)
	}

	q.Contact = refFrom(contactID, contactName)
	q.Account = refFrom(accountID, accountName)
	q.Opportunity = refFrom(opportunityID, opportunityName)
	q.CreatedBy = Ref{ID: createdByID, Name: createdByName}

	if q.Items, err = s.quoteItems(ctx, qid); err != nil {
		return Quote{}, err
	}
	if q.History, err = s.quoteHistory(ctx, qid); err != nil {
		return Quote{}, err
	}
	return q, nil
}

func refFrom(id, name *string) *Ref {
	if id == nil {
		return nil
	}
	ref := Ref{ID: *id}
	if name != nil {
		ref.Name = *name
	}
	return &ref
}

func (s *PGStore) quoteItems(ctx context.Context, quoteID string) ([]Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, product_id::text, description, quantity, unit_price, discount, total, position
		FROM quote_items WHERE quote_id = $1::uuid ORDER BY position`,
		quoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quote items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Discount, &it.Total, &it.Position); err != nil {
			return nil, fmt.Errorf("scan quote item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) quoteHistory(ctx context.Context, quoteID string) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT h.id::text, h.status, h.note, h.created_by::text, u.name, h.created_at
		FROM quote_status_history h
		JOIN users u ON u.id = h.created_by
		WHERE h.quote_id = $1::uuid
		ORDER BY h.created_at DESC, h.id DESC`,
		quoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quote history: %w", err)
	}
	defer rows.Close()

	history := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.Status, &h.Note, &h.CreatedBy.ID, &h.CreatedBy.Name, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *PGStore) GetQuoteOwner(ctx context.Context, id string) (string, error) {
	qid, err := parseID(id)
	if err != nil {
		return "", err
	}
	var owner string
	err = s.pool.QueryRow(ctx, `SELECT created_by::text FROM quotes WHERE id = $1::uuid`, qid).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get quote owner: %w", err)
	}
	return owner, nil
}

func (s *PGStore) ListQuotes(ctx context.Context, f ListFilter) ([]Summary, int64, error) {
	where := []string{}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.CreatedBy != nil {
		add("q.created_by = $%d::uuid", *f.CreatedBy)
	}
	if f.Search != "" {
		add("(q.number ILIKE $%d OR q.title ILIKE $%[1]d OR c.full_name ILIKE $%[1]d OR a.name ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	if f.Status != nil {
		add("q.status = $%d", *f.Status)
	}
	// Malformed id filters can never match a row; skip the query instead
	// of letting the uuid cast fail.
	for _, rel := range []struct {
		col string
		id  string
	}{
		{"q.contact_id", f.ContactID},
		{"q.account_id", f.AccountID},
		{"q.opportunity_id", f.OpportunityID},
	} {
		if rel.id == "" {
			continue
		}
		if _, err := uuid.Parse(rel.id); err != nil {
			return []Summary{}, 0, nil
		}
		add(rel.col+" = $%d::uuid", rel.id)
	}
	if f.From != nil {
		add("q.created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("q.created_at <= $%d", *f.To)
	}

	base := `
		FROM quotes q
		LEFT JOIN contacts c ON c.id = q.contact_id
		LEFT JOIN accounts a ON a.id = q.account_id
		LEFT JOIN opportunities o ON o.id = q.opportunity_id`
	if len(where) > 0 {
		base += " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*)"+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotes: %w", err)
	}

	query := `
		SELECT q.id::text, q.number, q.title, q.status,
			q.subtotal, q.discount, q.tax, q.total,
			q.contact_id::text, c.full_name,
			q.account_id::text, a.name,
			q.opportunity_id::text, o.title,
			q.created_at` + base +
		fmt.Sprintf(" ORDER BY q.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := []Summary{}
	for rows.Next() {
		var (
			sum                            Summary
			contactID, contactName         *string
			accountID, accountName         *string
			opportunityID, opportunityName *string
		)
		err := rows.Scan(
			&sum.ID, &sum.Number, &sum.Title, &sum.Status,
			&sum.Subtotal, &sum.Discount, &sum.Tax, &sum.Total,
			&contactID, &contactName,
			&accountID, &accountName,
			&opportunityID, &opportunityName,
			&sum.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan quote summary: %w", err)
		}
		sum.Contact = refFrom(contactID, contactName)
		sum.Account = refFrom(accountID, accountName)
		sum.Opportunity = refFrom(opportunityID, opportunityName)
		quotes = append(quotes, sum)
	}
	return quotes, total, rows.Err()
}

func (s *PGStore) UpdateQuote(ctx context.Context, arg UpdateParams) error {
	qid, err := parseID(arg.ID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update quote: %w", err)
	}
	defer tx.Rollback(ctx)

	set := []string{"updated_at = now()"}
	args := []any{}
	assign := func(col string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	assign("title", arg.Title)
	assign("notes", arg.Notes)
	assign("subtotal", arg.Subtotal)
	assign("discount", arg.Discount)
	assign("tax", arg.Tax)
	assign("total", arg.Total)
	if arg.Status != nil {
		assign("status", *arg.Status)
	}
	if arg.StatusUpdatedAt != nil {
		assign("status_updated_at", *arg.StatusUpdatedAt)
	}
	if arg.SentAt != nil {
		assign("sent_at", *arg.SentAt)
	}
	if arg.NegotiatedAt != nil {
		assign("negotiated_at", *arg.NegotiatedAt)
	}
	if arg.AcceptedAt != nil {
		assign("accepted_at", *arg.AcceptedAt)
	}
	if arg.LostAt != nil {
		assign("lost_at", *arg.LostAt)
	}
	assignRelation := func(col string, patch RelationPatch) {
		switch patch.Op {
		case RelationSet:
			args = append(args, patch.ID)
			set = append(set, fmt.Sprintf("%s = $%d::uuid", col, len(args)))
		case RelationClear:
			set = append(set, col+" = NULL")
		}
	}
	assignRelation("contact_id", arg.Contact)
	assignRelation("account_id", arg.Account)
	assignRelation("opportunity_id", arg.Opportunity)

	args = append(args, qid)
	query := fmt.Sprintf("UPDATE quotes SET %s WHERE id = $%d::uuid", strings.Join(set, ", "), len(args))

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrReferenceMissing
		}
		return fmt.Errorf("update quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if arg.ReplaceItems {
		if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1::uuid`, qid); err != nil {
			return fmt.Errorf("delete quote items: %w", err)
		}
		if err := insertItems(ctx, tx, qid, arg.Items); err != nil {
			return err
		}
	}
	if arg.History != nil {
		if err := insertHistory(ctx, tx, qid, *arg.History); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update quote: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteQuote(ctx context.Context, id string) error {
	qid, err := parseID(id)
	if err != nil {
		return err
	}
	// Items and history cascade. A zero row count is fine: deletes are
	// idempotent from the caller's point of view.
	if _, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE id = $1::uuid`, qid); err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	return nil
}

func (s *PGStore) GetOpportunityRef(ctx context.Context, id string) (OpportunityRef, error) {
	oid, err := parseID(id)
	if err != nil {
		return OpportunityRef{}, err
	}
	var ref OpportunityRef
	err = s.pool.QueryRow(ctx, `
		SELECT id::text, title, contact_id::text, account_id::text, assigned_to::text
		FROM opportunities WHERE id = $1::uuid`,
		oid,
	).Scan(&ref.ID, &ref.Title, &ref.ContactID, &ref.AccountID, &ref.AssignedTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return OpportunityRef{}, ErrNotFound
	}
	if err != nil {
		return OpportunityRef{}, fmt.Errorf("get opportunity: %w", err)
	}
	return ref, nil
}
