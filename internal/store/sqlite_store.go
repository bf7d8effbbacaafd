package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on top of a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open, migrated database handle. Close closes db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertUser stores a new user and returns the assigned ID.
// Returns ErrConstraintViolation if the email is already taken.
func (s *SQLiteStore) InsertUser(ctx context.Context, user User) (int64, error) {
	const q = `INSERT INTO users (name, email, password) VALUES (?, ?, ?)`

	res, err := s.db.ExecContext(ctx, q, user.Name, user.Email, user.Password)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("email %q: %w", user.Email, serrors.ErrConstraintViolation)
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}
	return id, nil
}

// FindUserByEmail returns the user registered with email.
// Returns ErrNotFound if there is none.
func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, name, email, password FROM users WHERE email = ?`

	var u User
	err := s.db.QueryRowContext(ctx, q, email).Scan(&u.ID, &u.Name, &u.Email, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &u, nil
}

// InsertProduct stores a new product and returns the assigned ID.
func (s *SQLiteStore) InsertProduct(ctx context.Context, product Product) (int64, error) {
	const q = `INSERT INTO products (name, quantity, price, image_ref) VALUES (?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, q, product.Name, product.Quantity, product.Price, nullString(product.ImageRef))
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read product id: %w", err)
	}
	return id, nil
}

// UpdateProduct replaces every field of the product with the given ID.
// Returns ErrNotFound if no product exists with the given ID.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, id int64, product Product) error {
	const q = `UPDATE products SET name = ?, quantity = ?, price = ?, image_ref = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, product.Name, product.Quantity, product.Price, nullString(product.ImageRef), id)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectOneRow(res)
}

// DeleteProduct removes a product by its ID.
// Returns ErrNotFound if no product exists with the given ID.
func (s *SQLiteStore) DeleteProduct(ctx context.Context, id int64) error {
	const q = `DELETE FROM products WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectOneRow(res)
}

// GetProduct retrieves a product by its ID.
// Returns ErrNotFound if no product exists with the given ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	const q = `SELECT id, name, quantity, price, image_ref FROM products WHERE id = ?`

	p, err := scanProduct(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetAllProducts returns all products ordered by ID, which is insertion order.
func (s *SQLiteStore) GetAllProducts(ctx context.Context) ([]Product, error) {
	const q = `SELECT id, name, quantity, price, image_ref FROM products ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *SQLiteStore) CountProducts(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(1) FROM products`

	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (Product, error) {
	var (
		p   Product
		ref sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price, &ref); err != nil {
		return Product{}, err
	}
	if ref.Valid {
		p.ImageRef = &ref.String
	}
	return p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
