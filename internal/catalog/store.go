package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// Product is one sellable machine, implement, or service.
type Product struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Category    *string  `json:"category"`
	Brand       *string  `json:"brand"`
	Description *string  `json:"description,omitempty"`
}

// Store is the catalog persistence boundary.
type Store interface {
	ListProducts(ctx context.Context, search string, limit int) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ListProducts(ctx context.Context, search string, limit int) ([]Product, error) {
	query := `
		SELECT id::text, code, name, price, category, brand
		FROM products`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR code ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Category, &p.Brand); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *PGStore) GetProduct(ctx context.Context, id string) (Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Product{}, ErrNotFound
	}
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, code, name, price, category, brand, description
		FROM products WHERE id = $1::uuid`,
		id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Category, &p.Brand, &p.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}
