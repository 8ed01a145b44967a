package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/immxrtalbeast/meetroom/internal/relay"
)

// PubSubClient is the stateless binding: events are triggered over HTTP and
// the room channel is streamed back over a websocket subscription. The
// server never learns about a dropped connection, so Leave goes through the
// rooms API.
type PubSubClient struct {
	rooms   *RoomsClient
	ws      *wsConn
	channel string
	roomID  string
	userID  string
	events  chan relay.Event
	log     *slog.Logger
}

// SubscribeRoom opens the channel of roomID. Subscribe before joining to
// see your own user-joined event.
func SubscribeRoom(ctx context.Context, rooms *RoomsClient, roomID, userID string, log *slog.Logger) (*PubSubClient, error) {
	const op = "client.pubsub.subscribe"

	channel := relay.Channel(roomID)
	log = log.With(slog.String("binding", "pubsub"), slog.String("channel", channel))

	wsURL := websocketURL(rooms.BaseURL(), "/signaling/subscribe", url.Values{"channel": {channel}})
	ws, err := dialWS(ctx, wsURL, nil, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &PubSubClient{
		rooms:   rooms,
		ws:      ws,
		channel: channel,
		roomID:  roomID,
		userID:  userID,
		events:  make(chan relay.Event, eventBuffer),
		log:     log,
	}
	go c.readPump()
	return c, nil
}

func (c *PubSubClient) readPump() {
	defer close(c.events)

	c.ws.readLoop(func(raw []byte) {
		var ev relay.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Debug("undecodable event dropped", slog.String("error", err.Error()))
			return
		}
		if _, err := relay.ParseEventType(string(ev.Type)); err != nil {
			c.log.Debug("unknown event dropped", slog.String("event", string(ev.Type)))
			return
		}
		select {
		case c.events <- ev:
		case <-c.ws.done:
		}
	})
}

func (c *PubSubClient) Events() <-chan relay.Event {
	return c.events
}

func (c *PubSubClient) Send(ctx context.Context, ev relay.Event) error {
	return c.rooms.Trigger(ctx, c.channel, string(ev.Type), ev.Data)
}

func (c *PubSubClient) Leave(ctx context.Context) error {
	_, err := c.rooms.Leave(ctx, c.roomID, c.userID)
	return err
}

func (c *PubSubClient) Close() error {
	c.ws.close()
	return nil
}
