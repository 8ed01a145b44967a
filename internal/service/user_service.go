package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetroom/internal/auth"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/repository"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
)

var ErrEmailTaken = fmt.Errorf("email is already registered: %w", domain.ErrValidation)

type UserService struct {
	users  repository.UserRepository
	tokens TokenIssuer
	log    *slog.Logger
}

func NewUserService(users repository.UserRepository, tokens TokenIssuer, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, tokens: tokens, log: log}
}

func (s *UserService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	const op = "service.user.register"
	log := s.log.With(slog.String("op", op))

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, domain.NewValidationError("body", "email, password and name are required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := domain.NewLocalUser(email, name, hash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserEmailExists) {
			log.Info("email already registered")
			return nil, ErrEmailTaken
		}
		log.Error("failed to create user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()))
	return &AuthResult{Token: token, User: user}, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "service.user.login"
	log := s.log.With(slog.String("op", op))

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, domain.NewValidationError("body", "email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrBadCredentials
		}
		log.Error("failed to find user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Accounts created through a provider have no local password.
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		log.Info("login rejected", slog.String("user_id", user.ID.String()))
		return nil, err
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Verify resolves a bearer token to a user that still exists.
func (s *UserService) Verify(ctx context.Context, token string) (*domain.User, error) {
	const op = "service.user.verify"

	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	identity, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}
