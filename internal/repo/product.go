package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crucial707/hci-inventory/internal/models"
)

// Order selects the id ordering of List.
type Order int

const (
	// OrderAsc lists products in creation order. It is the canonical ordering.
	OrderAsc Order = iota
	// OrderDesc lists newest products first.
	OrderDesc
)

const productColumns = `id, name, category, COALESCE(description, ''), image, price, stock, created_at`

// ========================
// REPOSITORY STRUCT
// ========================

type ProductRepo struct {
	DB *sql.DB
}

func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (models.Product, error) {
	var p models.Product
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&p.Description,
		&p.Image,
		&p.Price,
		&p.Stock,
		&p.CreatedAt,
	)
	return p, err
}

// ========================
// LIST PRODUCTS
// ========================

// List returns every product ordered by id. The result is never nil.
func (r *ProductRepo) List(ctx context.Context, order Order) ([]models.Product, error) {
	query := "SELECT " + productColumns + " FROM inventory.products ORDER BY id ASC"
	if order == OrderDesc {
		query = "SELECT " + productColumns + " FROM inventory.products ORDER BY id DESC"
	}

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ========================
// GET PRODUCT BY ID
// ========================

func (r *ProductRepo) Get(ctx context.Context, id int) (models.Product, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM inventory.products WHERE id = $1",
		id,
	)
	return collectOne(row, "get product")
}

// ========================
// CREATE PRODUCT
// ========================

// Create validates in and inserts it. Nothing is written when validation fails.
func (r *ProductRepo) Create(ctx context.Context, in models.ProductInput) (models.Product, error) {
	if err := ValidateProduct(in); err != nil {
		return models.Product{}, err
	}

	row := r.DB.QueryRowContext(ctx,
		`INSERT INTO inventory.products (name, category, description, image, price, stock)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+productColumns,
		in.Name, in.Category, in.Description, in.Image, *in.Price, in.Stock,
	)
	p, err := scanProduct(row)
	if err != nil {
		return models.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// ========================
// UPDATE PRODUCT BY ID
// ========================

// Update replaces every mutable column of the product in a single statement. The image
// column is overwritten with in.Image as given; no field is merged with the stored row.
func (r *ProductRepo) Update(ctx context.Context, id int, in models.ProductInput) (models.Product, error) {
	if err := ValidateProduct(in); err != nil {
		return models.Product{}, err
	}

	row := r.DB.QueryRowContext(ctx,
		`UPDATE inventory.products
		 SET name = $1, category = $2, description = $3, image = $4, price = $5, stock = $6
		 WHERE id = $7
		 RETURNING `+productColumns,
		in.Name, in.Category, in.Description, in.Image, *in.Price, in.Stock, id,
	)
	return collectOne(row, "update product")
}

// ========================
// DELETE PRODUCT BY ID
// ========================

// Delete removes the product and returns the row as it was before deletion.
func (r *ProductRepo) Delete(ctx context.Context, id int) (models.Product, error) {
	row := r.DB.QueryRowContext(ctx,
		"DELETE FROM inventory.products WHERE id = $1 RETURNING "+productColumns,
		id,
	)
	return collectOne(row, "delete product")
}

// ========================
// IMAGE REFERENCES
// ========================

// ImageRefs returns the set of image references still attached to a product.
func (r *ProductRepo) ImageRefs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT DISTINCT image FROM inventory.products WHERE image IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("list image refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]struct{})
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan image ref: %w", err)
		}
		refs[ref] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list image refs: %w", err)
	}
	return refs, nil
}

func collectOne(row *sql.Row, op string) (models.Product, error) {
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, ErrNotFound
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
