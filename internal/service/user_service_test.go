package service

import (
	"context"
	"testing"
	"time"

	"github.com/immxrtalbeast/meetroom/internal/auth"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService() (*UserService, *repository.InMemoryUserRepository) {
	users := repository.NewInMemoryUserRepository()
	return NewUserService(users, auth.NewJWTIssuer("test-secret", time.Hour), discardLogger()), users
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestUserService()

	reg, err := svc.Register(ctx, "alice@example.com", "hunter22", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "Alice", reg.User.Name)
	assert.NotEqual(t, "hunter22", reg.User.PasswordHash)

	login, err := svc.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	user, err := svc.Verify(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestUserService()

	tests := []struct {
		name                  string
		email, password, nick string
	}{
		{"missing name", "a@b.co", "hunter22", ""},
		{"missing password", "a@b.co", "", "A"},
		{"missing email", "", "hunter22", "A"},
		{"blank name", "a@b.co", "hunter22", "   "},
		{"blank email", "  ", "hunter22", "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.email, tt.password, tt.nick)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestUserService()

	_, err := svc.Register(ctx, "alice@example.com", "hunter22", "Alice")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "Alice@Example.com", "hunter33", "Alice 2")
	require.ErrorIs(t, err, ErrEmailTaken)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestLoginRejections(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestUserService()

	_, err := svc.Register(ctx, "alice@example.com", "hunter22", "Alice")
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, domain.NewProviderUser("kakao", "k-1", "social@example.com", "Social")))

	_, err = svc.Login(ctx, "alice@example.com", "wrong-pass")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Login(ctx, "social@example.com", "anything")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Login(ctx, "", "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestVerifyRejectsUnknownUserAndBadToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestUserService()

	_, err := svc.Verify(ctx, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Verify(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	ghost := domain.NewLocalUser("ghost@example.com", "Ghost", "x")
	token, err := svc.tokens.Issue(ghost.Identity())
	require.NoError(t, err)
	_, err = svc.Verify(ctx, token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
