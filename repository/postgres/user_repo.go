package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/storefront/domain"
	"github.com/fastygo/storefront/repository"
)

const userColumns = `id, name, password, role, active, version, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepository) GetByName(ctx context.Context, name string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1`, name)
	return scanUser(row)
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO users (name, password, role, active, version)
	VALUES ($1, $2, $3, $4, 0)
	RETURNING id, version, created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		user.Name,
		user.Password,
		user.Role,
		user.Active,
	).Scan(&user.ID, &user.Version, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateName
		}
		return err
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE users
	SET name = $3,
		password = $4,
		role = $5,
		active = $6,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $2
	RETURNING version, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Version,
		user.Name,
		user.Password,
		user.Role,
		user.Active,
	).Scan(&user.Version, &user.CreatedAt, &user.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrDuplicateName
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, user.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrUserNotFound
		}
		return domain.ErrVersionConflict
	default:
		return err
	}
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Conflictf("user %d still has purchases", id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SupervisorOf(ctx context.Context, employeeID int64) (*domain.User, error) {
	const query = `
	SELECT u.id, u.name, u.password, u.role, u.active, u.version, u.created_at, u.updated_at
	FROM user_supervisors s
	JOIN users u ON u.id = s.supervisor_id
	WHERE s.employee_id = $1
	`
	user, err := scanUser(r.pool.QueryRow(ctx, query, employeeID))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

func (r *userRepository) SetSupervisor(ctx context.Context, employeeID, supervisorID int64) error {
	const query = `
	INSERT INTO user_supervisors (employee_id, supervisor_id)
	VALUES ($1, $2)
	ON CONFLICT (employee_id) DO UPDATE
	SET supervisor_id = EXCLUDED.supervisor_id
	`
	if _, err := r.pool.Exec(ctx, query, employeeID, supervisorID); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return err
	}
	return nil
}

func scanUser(row scanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Password,
		&user.Role,
		&user.Active,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
