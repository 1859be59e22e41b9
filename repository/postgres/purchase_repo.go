package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

const purchaseSelect = `
	SELECT p.id, p.requester_id, ru.name, p.approver_id, au.name, p.status,
		p.created_at, p.decided_at, p.decision_reason,
		p.street, p.postal_code, p.city, p.country
	FROM purchases p
	JOIN users ru ON ru.id = p.requester_id
	LEFT JOIN users au ON au.id = p.approver_id
`

const purchaseFilter = `
	WHERE ($1::bigint = 0 OR p.requester_id = $1)
	  AND ($2::bigint = 0 OR p.approver_id = $2)
	  AND ($3::text = '' OR p.status = $3)
`

type purchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository returns a Postgres-backed implementation of PurchaseRepository.
func NewPurchaseRepository(pool *pgxpool.Pool) repository.PurchaseRepository {
	return &purchaseRepository{pool: pool}
}

func (r *purchaseRepository) Create(ctx context.Context, purchase *domain.Purchase) error {
	if purchase == nil {
		return domain.ErrInvalidPayload
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertPurchase = `
	INSERT INTO purchases (requester_id, approver_id, status, created_at,
		street, postal_code, city, country)
	VALUES ($1, $2, $3, COALESCE($4, NOW()), $5, $6, $7, $8)
	RETURNING id, created_at
	`
	var approverID *int64
	if purchase.Approver != nil {
		approverID = &purchase.Approver.ID
	}
	addr := purchase.DeliveryAddress
	if err := tx.QueryRow(ctx, insertPurchase,
		purchase.Requester.ID,
		approverID,
		purchase.Status,
		nullTime(purchase.CreatedAt),
		addr.Street,
		addr.PostalCode,
		addr.City,
		addr.Country,
	).Scan(&purchase.ID, &purchase.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return err
	}

	const insertLine = `
	INSERT INTO purchase_lines (purchase_id, line_no, product_id, product_name, quantity, unit_price)
	VALUES ($1, $2, $3, $4, $5, $6::numeric)
	RETURNING id
	`
	for i := range purchase.Lines {
		line := &purchase.Lines[i]
		if err := tx.QueryRow(ctx, insertLine,
			purchase.ID,
			i,
			line.ProductID,
			line.ProductName,
			line.Quantity,
			line.UnitPrice.String(),
		).Scan(&line.ID); err != nil {
			return fmt.Errorf("insert purchase line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	purchase.Refresh()
	return nil
}

func (r *purchaseRepository) GetByID(ctx context.Context, id int64) (*domain.Purchase, error) {
	return getPurchase(ctx, r.pool, id, false)
}

func getPurchase(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Purchase, error) {
	query := purchaseSelect + ` WHERE p.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF p`
	}
	purchase, err := scanPurchase(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, q, []*domain.Purchase{purchase}); err != nil {
		return nil, err
	}
	return purchase, nil
}

func (r *purchaseRepository) Find(ctx context.Context, filter repository.PurchaseFilter) ([]domain.Purchase, error) {
	query := purchaseSelect + purchaseFilter + `
	ORDER BY p.created_at DESC, p.id DESC
	LIMIT $4::bigint OFFSET $5
	`
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, query,
		filter.RequesterID,
		filter.ApproverID,
		string(filter.Status),
		pageLimit(filter.Limit),
		offset,
	)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *purchaseRepository) collect(ctx context.Context, rows pgx.Rows) ([]domain.Purchase, error) {
	var refs []*domain.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		refs = append(refs, purchase)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadLines(ctx, r.pool, refs); err != nil {
		return nil, err
	}

	purchases := make([]domain.Purchase, 0, len(refs))
	for _, p := range refs {
		purchases = append(purchases, *p)
	}
	return purchases, nil
}

func (r *purchaseRepository) Count(ctx context.Context, filter repository.PurchaseFilter) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases p`+purchaseFilter,
		filter.RequesterID,
		filter.ApproverID,
		string(filter.Status),
	).Scan(&count)
	return count, err
}

func (r *purchaseRepository) FindDecidedSince(ctx context.Context, requesterID int64, since time.Time) ([]domain.Purchase, error) {
	query := purchaseSelect + `
	WHERE p.requester_id = $1
	  AND p.status <> 'PENDING'
	  AND p.decided_at >= $2
	ORDER BY p.decided_at DESC, p.id DESC
	`
	rows, err := r.pool.Query(ctx, query, requesterID, since)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *purchaseRepository) Decide(ctx context.Context, id int64, decide repository.DecideFunc) (*domain.Purchase, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	purchase, err := getPurchase(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(purchase.Lines))
	for _, line := range purchase.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := productsByID(ctx, tx, ids, true)
	if err != nil {
		return nil, err
	}

	decision, err := decide(purchase, products)
	if err != nil {
		return nil, err
	}

	const updateStock = `
	UPDATE products
	SET stock_count = $2, version = version + 1, updated_at = $3
	WHERE id = $1
	`
	for productID, stock := range decision.Stock {
		tag, err := tx.Exec(ctx, updateStock, productID, stock, decision.DecidedAt)
		if err != nil {
			return nil, fmt.Errorf("update stock of product %d: %w", productID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, domain.ErrProductNotFound
		}
	}

	const updatePurchase = `
	UPDATE purchases
	SET status = $2,
		decided_at = $3,
		decision_reason = $4,
		approver_id = COALESCE($5, approver_id)
	WHERE id = $1
	`
	var approverID *int64
	if decision.Approver != nil {
		approverID = &decision.Approver.ID
	}
	if _, err := tx.Exec(ctx, updatePurchase,
		id,
		decision.Status,
		decision.DecidedAt,
		decision.Reason,
		approverID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	decidedAt := decision.DecidedAt
	purchase.Status = decision.Status
	purchase.DecidedAt = &decidedAt
	purchase.DecisionReason = decision.Reason
	if decision.Approver != nil {
		approver := *decision.Approver
		purchase.Approver = &approver
	}
	return purchase, nil
}

const productQuantitiesDesc = `
	SELECT l.product_id, COALESCE(MAX(pr.name), MAX(l.product_name)), SUM(l.quantity)
	FROM purchase_lines l
	JOIN purchases p ON p.id = l.purchase_id
	LEFT JOIN products pr ON pr.id = l.product_id
	WHERE p.status = 'COMPLETED'
	GROUP BY l.product_id
	ORDER BY SUM(l.quantity) DESC, l.product_id
	LIMIT $1::bigint
`

const productQuantitiesAsc = `
	SELECT l.product_id, COALESCE(MAX(pr.name), MAX(l.product_name)), SUM(l.quantity)
	FROM purchase_lines l
	JOIN purchases p ON p.id = l.purchase_id
	LEFT JOIN products pr ON pr.id = l.product_id
	WHERE p.status = 'COMPLETED'
	GROUP BY l.product_id
	ORDER BY SUM(l.quantity) ASC, l.product_id
	LIMIT $1::bigint
`

func (r *purchaseRepository) ProductQuantities(ctx context.Context, order repository.SortOrder, limit int) ([]domain.ProductPurchaseStat, error) {
	query := productQuantitiesDesc
	if order == repository.SortAsc {
		query = productQuantitiesAsc
	}
	rows, err := r.pool.Query(ctx, query, pageLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.ProductPurchaseStat
	for rows.Next() {
		var stat domain.ProductPurchaseStat
		if err := rows.Scan(&stat.ProductID, &stat.ProductName, &stat.Quantity); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func (r *purchaseRepository) CompletedTotalsByMonth(ctx context.Context, since time.Time) ([]domain.MonthlyPurchaseStat, error) {
	const query = `
	SELECT to_char(p.decided_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month,
		SUM(l.unit_price * l.quantity)::text
	FROM purchases p
	JOIN purchase_lines l ON l.purchase_id = p.id
	WHERE p.status = 'COMPLETED' AND p.decided_at >= $1
	GROUP BY month
	ORDER BY month
	`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.MonthlyPurchaseStat
	for rows.Next() {
		var (
			stat  domain.MonthlyPurchaseStat
			total string
		)
		if err := rows.Scan(&stat.YearMonth, &total); err != nil {
			return nil, err
		}
		if stat.TotalAmount, err = parseNumeric(total); err != nil {
			return nil, fmt.Errorf("parse monthly total %s: %w", stat.YearMonth, err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func scanPurchase(row scanner) (*domain.Purchase, error) {
	var (
		purchase     domain.Purchase
		approverID   *int64
		approverName *string
	)
	if err := row.Scan(
		&purchase.ID,
		&purchase.Requester.ID,
		&purchase.Requester.Name,
		&approverID,
		&approverName,
		&purchase.Status,
		&purchase.CreatedAt,
		&purchase.DecidedAt,
		&purchase.DecisionReason,
		&purchase.DeliveryAddress.Street,
		&purchase.DeliveryAddress.PostalCode,
		&purchase.DeliveryAddress.City,
		&purchase.DeliveryAddress.Country,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, err
	}
	if approverID != nil {
		ref := domain.UserRef{ID: *approverID}
		if approverName != nil {
			ref.Name = *approverName
		}
		purchase.Approver = &ref
	}
	return &purchase, nil
}

func loadLines(ctx context.Context, q querier, purchases []*domain.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Purchase, len(purchases))
	ids := make([]int64, 0, len(purchases))
	for _, p := range purchases {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	const query = `
	SELECT purchase_id, id, product_id, product_name, quantity, unit_price::text
	FROM purchase_lines
	WHERE purchase_id = ANY($1)
	ORDER BY purchase_id, line_no
	`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			purchaseID int64
			line       domain.PurchaseLine
			price      string
		)
		if err := rows.Scan(&purchaseID, &line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &price); err != nil {
			return err
		}
		if line.UnitPrice, err = parseNumeric(price); err != nil {
			return fmt.Errorf("parse unit price of line %d: %w", line.ID, err)
		}
		p := byID[purchaseID]
		p.Lines = append(p.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, p := range purchases {
		p.Refresh()
	}
	return nil
}
