package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store using in-memory maps. Nothing survives Close.
type InMemory struct {
	mu            sync.RWMutex
	users         map[int64]User
	usersByEmail  map[string]int64
	products      map[int64]Product
	nextUserID    int64
	nextProductID int64
}

// NewInMemoryStore creates a new, empty in-memory store.
func NewInMemoryStore() *InMemory {
	return &InMemory{
		users:         make(map[int64]User),
		usersByEmail:  make(map[string]int64),
		products:      make(map[int64]Product),
		nextUserID:    1,
		nextProductID: 1,
	}
}

func (s *InMemory) Ping(_ context.Context) error { return nil }

func (s *InMemory) Close() error { return nil }

// InsertUser stores a new user and returns the assigned ID.
func (s *InMemory) InsertUser(_ context.Context, user User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return 0, fmt.Errorf("email %q: %w", user.Email, serrors.ErrConstraintViolation)
	}
	user.ID = s.nextUserID
	s.nextUserID++
	s.users[user.ID] = user
	s.usersByEmail[user.Email] = user.ID
	return user.ID, nil
}

// FindUserByEmail returns the user registered with email.
func (s *InMemory) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

// InsertProduct stores a new product and returns the assigned ID.
func (s *InMemory) InsertProduct(_ context.Context, product Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product = product.Clone()
	product.ID = s.nextProductID
	s.nextProductID++
	s.products[product.ID] = product
	return product.ID, nil
}

// UpdateProduct replaces every field of the product with the given ID.
func (s *InMemory) UpdateProduct(_ context.Context, id int64, product Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return serrors.ErrNotFound
	}
	product = product.Clone()
	product.ID = id
	s.products[id] = product
	return nil
}

// DeleteProduct deletes a product by its ID.
func (s *InMemory) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return serrors.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// GetProduct retrieves a product by its ID.
func (s *InMemory) GetProduct(_ context.Context, id int64) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	p = p.Clone()
	return &p, nil
}

// GetAllProducts retrieves all products in insertion order. IDs are handed out
// increasingly, so ordering by ID is insertion order.
func (s *InMemory) GetAllProducts(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		list = append(list, p.Clone())
	}
	slices.SortFunc(list, func(a, b Product) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return list, nil
}

func (s *InMemory) CountProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}
