package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func newTestRegistry() *Registry {
	return NewRegistry(repository.NewInMemoryRoomRepository(), discardLogger())
}

func TestRegistryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	room, err := reg.CreateRoom(ctx, "r1", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, room.Members)
	assert.Equal(t, "alice", room.Host)

	_, err = reg.CreateRoom(ctx, "r1", "bob", nil)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := reg.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.MemberList())

	_, err = reg.GetRoom(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	_, err := reg.CreateRoom(ctx, "r1", "alice", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		room, err := reg.JoinRoom(ctx, "r1", "bob", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, room.MemberList())
	}
}

func TestRegistryJoinChecksPassword(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	_, err := reg.CreateRoom(ctx, "r1", "alice", strPtr("secret"))
	require.NoError(t, err)

	_, err = reg.JoinRoom(ctx, "r1", "bob", strPtr("guess"))
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = reg.JoinRoom(ctx, "r1", "bob", nil)
	require.ErrorIs(t, err, ErrWrongPassword)

	room, err := reg.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, room.HasMember("bob"))

	room, err = reg.JoinRoom(ctx, "r1", "bob", strPtr("secret"))
	require.NoError(t, err)
	assert.True(t, room.HasMember("bob"))
}

func TestRegistryJoinMissingRoom(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.JoinRoom(context.Background(), "missing", "bob", nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryLeaveDeletesEmptyRoom(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	_, err := reg.CreateRoom(ctx, "r1", "alice", nil)
	require.NoError(t, err)
	_, err = reg.JoinRoom(ctx, "r1", "bob", nil)
	require.NoError(t, err)

	out, err := reg.LeaveRoom(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.True(t, out.Removed)
	assert.False(t, out.Deleted)
	assert.Equal(t, []string{"bob"}, out.Room.MemberList())

	out, err = reg.LeaveRoom(ctx, "r1", "stranger")
	require.NoError(t, err)
	assert.False(t, out.Removed)
	assert.False(t, out.Deleted)

	out, err = reg.LeaveRoom(ctx, "r1", "bob")
	require.NoError(t, err)
	assert.True(t, out.Removed)
	assert.True(t, out.Deleted)
	assert.Nil(t, out.Room)

	_, err = reg.GetRoom(ctx, "r1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	out, err = reg.LeaveRoom(ctx, "r1", "bob")
	require.NoError(t, err)
	assert.Equal(t, LeaveOutcome{}, out)
}

func TestRegistryCheckPassword(t *testing.T) {
	reg := newTestRegistry()
	open := domain.NewRoom("r1", "alice", nil)
	locked := domain.NewRoom("r2", "alice", strPtr("secret"))

	assert.True(t, reg.CheckPassword(open, nil))
	assert.True(t, reg.CheckPassword(open, strPtr("anything")))
	assert.False(t, reg.CheckPassword(locked, nil))
	assert.False(t, reg.CheckPassword(locked, strPtr("Secret")))
	assert.True(t, reg.CheckPassword(locked, strPtr("secret")))
}

func TestRegistryConcurrentJoinsAndLeaves(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	_, err := reg.CreateRoom(ctx, "r1", "host", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			_, err := reg.JoinRoom(ctx, "r1", id, nil)
			assert.NoError(t, err)
			if i%2 == 0 {
				_, err = reg.LeaveRoom(ctx, "r1", id)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	room, err := reg.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 26, room.MemberCount())
	for i := 1; i < 50; i += 2 {
		assert.True(t, room.HasMember(fmt.Sprintf("p%d", i)))
	}
}
