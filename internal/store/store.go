// Package store provides durable storage for users and products.
package store

import (
	"context"
)

// User is a registered account. Email is the unique lookup key.
type User struct {
	ID       int64
	Name     string
	Email    string
	Password string
}

// Product is an inventory record. ImageRef is nil when the product has no photo.
type Product struct {
	ID       int64
	Name     string
	Quantity int64
	Price    float64
	ImageRef *string
}

// Clone returns a copy that shares no memory with p.
func (p Product) Clone() Product {
	if p.ImageRef != nil {
		ref := *p.ImageRef
		p.ImageRef = &ref
	}
	return p
}

// UserStore is the user half of the record store.
type UserStore interface {
	// InsertUser stores a new user and returns the assigned ID.
	// Returns ErrConstraintViolation if the email is already taken.
	InsertUser(ctx context.Context, user User) (int64, error)

	// FindUserByEmail returns the user registered with email.
	// Returns ErrNotFound if there is none.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// ProductStore is the product half of the record store.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// InsertProduct stores a new product and returns the assigned ID. The ID field of product is ignored.
	InsertProduct(ctx context.Context, product Product) (int64, error)

	// UpdateProduct replaces every field of the product with the given ID.
	// Returns ErrNotFound if no product exists with the given ID.
	UpdateProduct(ctx context.Context, id int64, product Product) error

	// DeleteProduct removes a product by its ID.
	// Returns ErrNotFound if no product exists with the given ID.
	DeleteProduct(ctx context.Context, id int64) error

	// GetProduct retrieves a single product by its unique identifier.
	// Returns ErrNotFound if no product exists with the given ID.
	GetProduct(ctx context.Context, id int64) (*Product, error)

	// GetAllProducts returns all products in insertion order.
	// Returns an empty slice if no products exist.
	GetAllProducts(ctx context.Context) ([]Product, error)

	// CountProducts returns the number of stored products.
	CountProducts(ctx context.Context) (int, error)
}

// Store is the complete record store.
type Store interface {
	UserStore
	ProductStore

	Ping(ctx context.Context) error
	Close() error
}
