package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRoomRepository shares rooms between server instances. Per-room
// serialization comes from a row lock held for the duration of Update.
type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelRoom(room)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomExists
		}
		return err
	}
	return nil
}

func (r *PostgresRoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).
		Preload("Members", orderMembers).
		First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) Update(ctx context.Context, id string, fn RoomMutation) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if err := tx.Where("room_id = ?", id).Order("position").Find(&row.Members).Error; err != nil {
			return err
		}

		room := toDomainRoom(&row)
		deleteRoom, err := fn(room)
		if err != nil {
			return err
		}

		if err := tx.Where("room_id = ?", id).Delete(&model.RoomMember{}).Error; err != nil {
			return err
		}

		if deleteRoom {
			return tx.Delete(&model.Room{}, "id = ?", id).Error
		}

		members := toModelMembers(room)
		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}
		result = room.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRoomRepository) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Room{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", normalizeEmail(email))
}

func (r *PostgresUserRepository) FindByProviderID(ctx context.Context, provider, providerID string) (*domain.User, error) {
	return r.findOne(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)
	updateData := map[string]any{
		"email":         userModel.Email,
		"name":          userModel.Name,
		"password_hash": userModel.PasswordHash,
		"provider":      userModel.Provider,
		"provider_id":   userModel.ProviderID,
		"updated_at":    userModel.UpdatedAt,
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updateData)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toDomainUser(&user), nil
}

func orderMembers(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func toModelRoom(room *domain.Room) *model.Room {
	return &model.Room{
		ID:        room.ID,
		Password:  room.Password,
		Host:      room.Host,
		CreatedAt: room.CreatedAt.UTC(),
		Members:   toModelMembers(room),
	}
}

func toModelMembers(room *domain.Room) []model.RoomMember {
	members := make([]model.RoomMember, 0, len(room.Members))
	for i, id := range room.Members {
		members = append(members, model.RoomMember{
			RoomID:        room.ID,
			ParticipantID: id,
			Position:      i,
		})
	}
	return members
}

func toDomainRoom(room *model.Room) *domain.Room {
	members := make([]string, 0, len(room.Members))
	for _, m := range room.Members {
		members = append(members, m.ParticipantID)
	}
	return &domain.Room{
		ID:        room.ID,
		Members:   members,
		Password:  room.Password,
		Host:      room.Host,
		CreatedAt: room.CreatedAt.UTC(),
	}
}

func toModelUser(user *domain.User) *model.User {
	var hash, providerID *string
	if user.PasswordHash != "" {
		h := user.PasswordHash
		hash = &h
	}
	if user.ProviderID != "" {
		p := user.ProviderID
		providerID = &p
	}
	return &model.User{
		ID:           user.ID,
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		Name:         user.Name,
		PasswordHash: hash,
		Provider:     user.Provider,
		ProviderID:   providerID,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	out := &domain.User{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Provider:  user.Provider,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
	if user.PasswordHash != nil {
		out.PasswordHash = *user.PasswordHash
	}
	if user.ProviderID != nil {
		out.ProviderID = *user.ProviderID
	}
	return out
}
