package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/metrics"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
)

//go:generate mockgen -destination=mocks/publisher.go -package=mocks . Publisher

// Publisher delivers one event to every subscriber of a channel. Delivery is
// fire-and-forget: a nil error means the event was handed to the transport,
// not that anyone received it.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// Sink is a named Publisher, the name only labels metrics and logs.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout publishes every event to all of its sinks. A failing sink never
// stops delivery to the others.
type Fanout struct {
	sinks []Sink
	log   *slog.Logger
}

func NewFanout(log *slog.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Publish(ctx context.Context, channel string, ev Event) error {
	const op = "relay.fanout.publish"
	log := f.log.With(
		slog.String("op", op),
		slog.String("channel", channel),
		slog.String("event", string(ev.Type)),
	)

	metrics.RelayEvents.WithLabelValues(string(ev.Type)).Inc()

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publisher.Publish(ctx, channel, ev); err != nil {
			metrics.RelayFailures.WithLabelValues(sink.Name).Inc()
			log.Warn("sink publish failed", slog.String("sink", sink.Name), sl.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransport, errors.Join(errs...))
}
