package relay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/internal/relay/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFanoutPublishesToEverySink(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockPublisher(ctrl)
	second := mocks.NewMockPublisher(ctrl)

	ev := relay.MustEvent(relay.EventChatMessage, relay.ChatMessage{UserID: "alice", Message: "hi"})
	first.EXPECT().Publish(gomock.Any(), "room-r1", ev).Return(nil)
	second.EXPECT().Publish(gomock.Any(), "room-r1", ev).Return(nil)

	fan := relay.NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)),
		relay.Sink{Name: "hub", Publisher: first},
		relay.Sink{Name: "pusher", Publisher: second},
	)
	require.NoError(t, fan.Publish(context.Background(), "room-r1", ev))
}

func TestFanoutKeepsGoingAfterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	failing := mocks.NewMockPublisher(ctrl)
	healthy := mocks.NewMockPublisher(ctrl)

	boom := errors.New("connection refused")
	failing.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)
	healthy.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	fan := relay.NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)),
		relay.Sink{Name: "pusher", Publisher: failing},
		relay.Sink{Name: "hub", Publisher: healthy},
	)
	err := fan.Publish(context.Background(), "room-r1", relay.Event{Type: relay.EventOffer})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pusher")
}
