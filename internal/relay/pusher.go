package relay

import (
	"context"
	"fmt"

	"github.com/pusher/pusher-http-go/v5"
)

// Trigger is the part of the Pusher HTTP client the relay needs.
type Trigger interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// PusherPublisher forwards events to a hosted Pusher channel, the stateless
// pub/sub binding browsers subscribe to directly.
type PusherPublisher struct {
	client Trigger
}

type PusherOptions struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
}

func NewPusherPublisher(opts PusherOptions) *PusherPublisher {
	return &PusherPublisher{
		client: &pusher.Client{
			AppID:   opts.AppID,
			Key:     opts.Key,
			Secret:  opts.Secret,
			Cluster: opts.Cluster,
			Secure:  true,
		},
	}
}

func NewPusherPublisherWithClient(client Trigger) *PusherPublisher {
	return &PusherPublisher{client: client}
}

func (p *PusherPublisher) Publish(ctx context.Context, channel string, ev Event) error {
	const op = "relay.pusher.publish"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.client.Trigger(channel, string(ev.Type), ev.Data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
