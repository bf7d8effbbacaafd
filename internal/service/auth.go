package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	serrors "github.com/abgdnv/storekeeper/internal/errors"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/go-playground/validator/v10"
)

// AuthService registers users and checks their credentials. It keeps no
// session state; being logged in is up to the caller.
type AuthService interface {
	// SignUp registers a new user.
	// Returns ErrAlreadyExists if the email is taken.
	SignUp(ctx context.Context, input SignUpInput) (*store.User, error)

	// LogIn returns the user matching email and password.
	// Returns ErrInvalidCredentials if there is none.
	LogIn(ctx context.Context, email, password string) (*store.User, error)
}

// SignUpInput holds the sign-up form fields.
type SignUpInput struct {
	Name     string `json:"name"     validate:"notblank"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Auth implements AuthService.
type Auth struct {
	users    store.UserStore
	validate *validator.Validate
}

var _ AuthService = (*Auth)(nil)

// NewAuthService creates a new auth service.
func NewAuthService(users store.UserStore) *Auth {
	return &Auth{
		users:    users,
		validate: newValidator(),
	}
}

// SignUp validates input and stores the new user.
func (s *Auth) SignUp(ctx context.Context, input SignUpInput) (*store.User, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	_, err := s.users.FindUserByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return nil, serrors.ErrAlreadyExists
	case !errors.Is(err, serrors.ErrNotFound):
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user := store.User{Name: input.Name, Email: input.Email, Password: input.Password}
	id, err := s.users.InsertUser(ctx, user)
	if err != nil {
		// lost a race with a concurrent sign-up for the same email
		if errors.Is(err, serrors.ErrConstraintViolation) {
			return nil, serrors.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id
	return &user, nil
}

// LogIn looks the user up by email and compares passwords.
func (s *Auth) LogIn(ctx context.Context, email, password string) (*store.User, error) {
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !credentialsMatch(user.Password, password) {
		return nil, serrors.ErrInvalidCredentials
	}
	return user, nil
}

// credentialsMatch is the single place passwords are compared.
// TODO: store salted hashes and compare those instead of plaintext.
func credentialsMatch(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
