package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meetroom",
		Name:      "rooms_active",
		Help:      "Rooms that currently have at least one member.",
	})

	RoomMembershipChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetroom",
		Name:      "room_membership_changes_total",
		Help:      "Applied membership mutations by kind.",
	}, []string{"kind"})

	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetroom",
		Name:      "relay_events_total",
		Help:      "Events handed to the signaling relay by event type.",
	}, []string{"event"})

	RelayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetroom",
		Name:      "relay_failures_total",
		Help:      "Relay deliveries that failed, by sink.",
	}, []string{"sink"})

	RelayDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meetroom",
		Name:      "relay_dropped_total",
		Help:      "Events dropped because a subscriber queue was full.",
	})

	SocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meetroom",
		Name:      "socket_sessions",
		Help:      "Open websocket sessions (socket binding and subscriptions).",
	})
)
