package users

import (
	"context"
	"sync"

	"repairscribe/internal/models"
)

// MemoryRepository keeps users in a process-local map.
type MemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: make(map[string]*models.User)}
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) Insert(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return ErrAlreadyExists
	}
	cp := *user
	r.byEmail[user.Email] = &cp
	return nil
}

// Len reports the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}
