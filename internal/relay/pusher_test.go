package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triggerCall struct {
	channel string
	event   string
	data    interface{}
}

type fakeTrigger struct {
	calls []triggerCall
	err   error
}

func (f *fakeTrigger) Trigger(channel string, eventName string, data interface{}) error {
	f.calls = append(f.calls, triggerCall{channel: channel, event: eventName, data: data})
	return f.err
}

func TestPusherPublisherTriggersNamedEvent(t *testing.T) {
	trigger := &fakeTrigger{}
	pub := NewPusherPublisherWithClient(trigger)

	ev := MustEvent(EventUserLeft, UserLeft{UserID: "alice", UserCount: 1, AllUsers: []string{"bob"}})
	require.NoError(t, pub.Publish(context.Background(), "room-r1", ev))

	require.Len(t, trigger.calls, 1)
	call := trigger.calls[0]
	assert.Equal(t, "room-r1", call.channel)
	assert.Equal(t, "user-left", call.event)

	encoded, err := json.Marshal(call.data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"alice","userCount":1,"allUsers":["bob"]}`, string(encoded))
}

func TestPusherPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("status 500")
	pub := NewPusherPublisherWithClient(&fakeTrigger{err: boom})

	err := pub.Publish(context.Background(), "room-r1", Event{Type: EventOffer})
	require.ErrorIs(t, err, boom)
}
