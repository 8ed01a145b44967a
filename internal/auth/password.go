package auth

import (
	"errors"
	"fmt"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func ComparePassword(hash, password string) error {
	if hash == "" {
		return ErrBadCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrBadCredentials
	}
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}
