package repository

import (
	"context"
	"sync"
	"time"

	"github.com/etsong/catalogbackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User // keyed by id hex
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	u.ID = bson.NewObjectID()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	r.users[u.ID.Hex()] = &cp
	return nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, ErrInvalidID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}
