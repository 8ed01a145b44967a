package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetroom/internal/domain"
)

type roomSlot struct {
	mu   sync.Mutex
	room *domain.Room
}

// InMemoryRoomRepository keeps rooms in process memory. It is only correct for
// a single instance; multi-instance deployments use PostgresRoomRepository.
type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*roomSlot
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[string]*roomSlot),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; ok {
		return ErrRoomExists
	}

	r.rooms[room.ID] = &roomSlot{room: room.Clone()}
	return nil
}

func (r *InMemoryRoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot := r.slot(id)
	if slot == nil {
		return nil, ErrRoomNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.room == nil {
		return nil, ErrRoomNotFound
	}
	return slot.room.Clone(), nil
}

func (r *InMemoryRoomRepository) Update(ctx context.Context, id string, fn RoomMutation) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot := r.slot(id)
	if slot == nil {
		return nil, ErrRoomNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	// Deleted while we were waiting for the lock.
	if slot.room == nil {
		return nil, ErrRoomNotFound
	}

	working := slot.room.Clone()
	deleteRoom, err := fn(working)
	if err != nil {
		return nil, err
	}

	if deleteRoom {
		slot.room = nil
		r.mu.Lock()
		if r.rooms[id] == slot {
			delete(r.rooms, id)
		}
		r.mu.Unlock()
		return nil, nil
	}

	slot.room = working
	return working.Clone(), nil
}

func (r *InMemoryRoomRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), nil
}

func (r *InMemoryRoomRepository) slot(id string) *roomSlot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

type InMemoryUserRepository struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*domain.User
	emails    map[string]uuid.UUID
	providers map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:     make(map[uuid.UUID]*domain.User),
		emails:    make(map[string]uuid.UUID),
		providers: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := normalizeEmail(user.Email)
	if email != "" {
		if _, ok := r.emails[email]; ok {
			return ErrUserEmailExists
		}
		r.emails[email] = user.ID
	}
	if user.ProviderID != "" {
		r.providers[providerKey(user.Provider, user.ProviderID)] = user.ID
	}

	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *InMemoryUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lookup(id, true)
}

func (r *InMemoryUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[normalizeEmail(email)]
	return r.lookup(id, ok)
}

func (r *InMemoryUserRepository) FindByProviderID(ctx context.Context, provider, providerID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.providers[providerKey(provider, providerID)]
	return r.lookup(id, ok)
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	newEmail := normalizeEmail(user.Email)
	oldEmail := normalizeEmail(existing.Email)
	if newEmail != oldEmail {
		if owner, taken := r.emails[newEmail]; taken && owner != user.ID {
			return ErrUserEmailExists
		}
		delete(r.emails, oldEmail)
		if newEmail != "" {
			r.emails[newEmail] = user.ID
		}
	}

	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *InMemoryUserRepository) lookup(id uuid.UUID, ok bool) (*domain.User, error) {
	if !ok {
		return nil, ErrUserNotFound
	}
	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func providerKey(provider, providerID string) string {
	return provider + ":" + providerID
}
