package service

import (
	"fmt"

	"github.com/abgdnv/storekeeper/internal/store"
)

// Kind selects which service New builds.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindProduct
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindProduct:
		return "product"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Deps are the collaborators services are built from.
type Deps struct {
	Users    store.UserStore
	Products ProductRepository
	Images   ImageResolver
}

// New builds the service of the given kind. The result is an AuthService for
// KindAuth and a ProductService for KindProduct.
func New(kind Kind, deps Deps) (any, error) {
	switch kind {
	case KindAuth:
		if deps.Users == nil {
			return nil, fmt.Errorf("%s service needs a user store", kind)
		}
		return NewAuthService(deps.Users), nil
	case KindProduct:
		if deps.Products == nil || deps.Images == nil {
			return nil, fmt.Errorf("%s service needs a product repository and an image resolver", kind)
		}
		return NewProductService(deps.Products, deps.Images), nil
	default:
		return nil, fmt.Errorf("unknown service kind: %s", kind)
	}
}
