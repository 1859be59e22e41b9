package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

const productColumns = `id, name, price::text, stock_count, version, updated_at`

type productRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a Postgres-backed implementation of ProductRepository.
func NewProductRepository(pool *pgxpool.Pool) repository.ProductRepository {
	return &productRepository{pool: pool}
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	return productsByID(ctx, r.pool, ids, false)
}

func productsByID(ctx context.Context, q querier, ids []int64, forUpdate bool) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	if forUpdate {
		query += ` ORDER BY id FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[product.ID] = *product
	}
	return out, rows.Err()
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

func (r *productRepository) Save(ctx context.Context, product *domain.Product) error {
	if product == nil {
		return domain.ErrInvalidPayload
	}

	if product.ID == 0 {
		const insert = `
		INSERT INTO products (name, price, stock_count, version)
		VALUES ($1, $2::numeric, $3, 0)
		RETURNING id, version, updated_at
		`
		return r.pool.QueryRow(ctx, insert,
			product.Name,
			product.Price.String(),
			product.StockCount,
		).Scan(&product.ID, &product.Version, &product.UpdatedAt)
	}

	const update = `
	UPDATE products
	SET name = $3,
		price = $4::numeric,
		stock_count = $5,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $2
	RETURNING version, updated_at
	`
	err := r.pool.QueryRow(ctx, update,
		product.ID,
		product.Version,
		product.Name,
		product.Price.String(),
		product.StockCount,
	).Scan(&product.Version, &product.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, product.ID); getErr != nil {
			return getErr
		}
		return domain.ErrVersionConflict
	}
	return err
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row scanner) (*domain.Product, error) {
	var (
		product domain.Product
		price   string
	)
	if err := row.Scan(
		&product.ID,
		&product.Name,
		&price,
		&product.StockCount,
		&product.Version,
		&product.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	parsed, err := parseNumeric(price)
	if err != nil {
		return nil, fmt.Errorf("parse price of product %d: %w", product.ID, err)
	}
	product.Price = parsed
	return &product, nil
}
