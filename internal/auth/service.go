package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"repairscribe/internal/apperr"
	"repairscribe/internal/models"
	"repairscribe/internal/users"
)

// DefaultBcryptCost is the work factor used for stored password hashes.
const DefaultBcryptCost = 12

var (
	ErrDuplicateUser      = apperr.New(apperr.KindConflict, "User already exists")
	ErrInvalidCredentials = apperr.New(apperr.KindAuth, "Invalid credentials")
)

// Session is the result of a successful register or login.
type Session struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// Service registers users, checks credentials and verifies session tokens.
type Service struct {
	users      users.Repository
	tokens     *TokenIssuer
	cost       int
	dummyHash  []byte
	headerName string
	now        func() time.Time
}

// NewService constructs an auth service. cost <= 0 selects DefaultBcryptCost.
func NewService(repo users.Repository, tokens *TokenIssuer, cost int) (*Service, error) {
	if repo == nil || tokens == nil {
		return nil, errors.New("auth: repository and token issuer are required")
	}
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	// compared against when the email is unknown so both failure paths pay
	// for one bcrypt comparison
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy hash: %w", err)
	}
	return &Service{
		users:      repo,
		tokens:     tokens,
		cost:       cost,
		dummyHash:  dummy,
		headerName: "Authorization",
		now:        time.Now,
	}, nil
}

// Register creates a user with the supplied credentials and returns a fresh
// session for it.
func (s *Service) Register(ctx context.Context, email, password, name string) (*Session, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, apperr.Validation("email, password and name are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("register user: %w", err)
	}
	return s.session(user)
}

// Login validates credentials and returns a fresh session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

// Verify checks a bearer token and returns the identity it carries.
func (s *Service) Verify(token string) (*models.Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	return s.tokens.Verify(token)
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: user.Public()}, nil
}
