// Package service provides the product and auth business logic on top of the
// record store, the change notifier and the image pipeline.
package service

import (
	"context"
	"fmt"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/go-playground/validator/v10"
)

// ProductService defines the methods for managing products.
// Every mutating method validates its input before touching storage.
type ProductService interface {
	// Create validates input and stores a new product.
	// Returns a *ValidationError (matching ErrValidation) on bad input.
	Create(ctx context.Context, input ProductInput) (*store.Product, error)

	// Update replaces every field of an existing product.
	// Returns ErrNotFound if no product exists with the given ID.
	Update(ctx context.Context, id int64, input ProductInput) (*store.Product, error)

	// Delete removes a product. Returns ErrNotFound if no product exists with the given ID.
	Delete(ctx context.Context, id int64) error

	// Get returns a single product. Returns ErrNotFound if no product exists with the given ID.
	Get(ctx context.Context, id int64) (*store.Product, error)

	// List returns all products in insertion order.
	List(ctx context.Context) ([]store.Product, error)

	// WatchAll streams the full product list, starting with the current one.
	WatchAll(ctx context.Context) (<-chan []store.Product, error)

	// Watch streams a single product, nil meaning it does not exist (anymore).
	Watch(ctx context.Context, id int64) (<-chan *store.Product, error)
}

// ProductRepository is a product store that can also be observed.
// notify.Notifier implements it.
type ProductRepository interface {
	store.ProductStore
	SubscribeToAllProducts(ctx context.Context) (<-chan []store.Product, error)
	SubscribeToProduct(ctx context.Context, id int64) (<-chan *store.Product, error)
}

// ImageResolver checks that an image reference names a committed image.
// media.Pipeline implements it.
type ImageResolver interface {
	Resolve(ref string) (string, error)
}

// ProductInput holds the user-editable product fields.
type ProductInput struct {
	Name     string  `json:"name"     validate:"notblank"`
	Quantity int64   `json:"quantity" validate:"gte=0"`
	Price    float64 `json:"price"    validate:"gte=0,finite"`
	ImageRef *string `json:"imageRef"`
}

// Products implements ProductService.
type Products struct {
	repository ProductRepository
	images     ImageResolver
	validate   *validator.Validate
}

var _ ProductService = (*Products)(nil)

// NewProductService creates a new product service.
func NewProductService(repo ProductRepository, images ImageResolver) *Products {
	return &Products{
		repository: repo,
		images:     images,
		validate:   newValidator(),
	}
}

// Create validates input, stores the product and returns it with its new ID.
func (s *Products) Create(ctx context.Context, input ProductInput) (*store.Product, error) {
	product, err := s.toProduct(input)
	if err != nil {
		return nil, err
	}
	id, err := s.repository.InsertProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	product.ID = id
	return &product, nil
}

// Update validates input and replaces the product with the given ID.
func (s *Products) Update(ctx context.Context, id int64, input ProductInput) (*store.Product, error) {
	product, err := s.toProduct(input)
	if err != nil {
		return nil, err
	}
	if err := s.repository.UpdateProduct(ctx, id, product); err != nil {
		return nil, fmt.Errorf("failed to update product with ID %d: %w", id, err)
	}
	product.ID = id
	return &product, nil
}

// Delete removes the product with the given ID.
func (s *Products) Delete(ctx context.Context, id int64) error {
	if err := s.repository.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product with ID %d: %w", id, err)
	}
	return nil
}

// Get retrieves a product by its ID.
func (s *Products) Get(ctx context.Context, id int64) (*store.Product, error) {
	product, err := s.repository.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %d: %w", id, err)
	}
	return product, nil
}

// List retrieves all products.
func (s *Products) List(ctx context.Context) ([]store.Product, error) {
	products, err := s.repository.GetAllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

func (s *Products) WatchAll(ctx context.Context) (<-chan []store.Product, error) {
	return s.repository.SubscribeToAllProducts(ctx)
}

func (s *Products) Watch(ctx context.Context, id int64) (<-chan *store.Product, error) {
	return s.repository.SubscribeToProduct(ctx, id)
}

// toProduct validates input and checks that an attached image was committed.
func (s *Products) toProduct(input ProductInput) (store.Product, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return store.Product{}, err
	}
	if input.ImageRef != nil {
		if _, err := s.images.Resolve(*input.ImageRef); err != nil {
			return store.Product{}, serrors.NewValidationError("imageRef", "failed on rule: committed")
		}
	}
	return store.Product{
		Name:     input.Name,
		Quantity: input.Quantity,
		Price:    input.Price,
		ImageRef: input.ImageRef,
	}.Clone(), nil
}
