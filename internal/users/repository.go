// Package users holds the credential store behind the auth service.
package users

import (
	"context"
	"errors"

	"repairscribe/internal/models"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// Repository stores users. Insert must be an atomic insert-if-absent on
// email: of two concurrent inserts for one email exactly one succeeds and the
// other returns ErrAlreadyExists.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) error
}
