package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID        string       `gorm:"size:32;primaryKey"`
	Password  *string      `gorm:"size:255"`
	Host      string       `gorm:"size:160;not null"`
	CreatedAt time.Time    `gorm:"not null"`
	Members   []RoomMember `gorm:"constraint:OnDelete:CASCADE"`
}

type RoomMember struct {
	RoomID        string `gorm:"size:32;primaryKey"`
	ParticipantID string `gorm:"size:160;primaryKey"`
	Position      int    `gorm:"not null"`
}

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	Name         string    `gorm:"size:255;not null"`
	PasswordHash *string   `gorm:"size:255"`
	Provider     string    `gorm:"size:32;not null;index:idx_users_provider"`
	ProviderID   *string   `gorm:"size:255;index:idx_users_provider"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}
