// Package nats provides a broker-backed group registry so broadcasts
// reach sessions held by other server processes. Each conversation key
// maps to one subject; a process holds a single subscription per key it
// has local members for and fans received events out to them. The
// publishing process hears its own publishes through the same
// subscription, which is how the sender's other sessions get included.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/core"
)

const subjectPrefix = "dialogd.chat."

// Registry implements core.Registry on top of a NATS connection.
type Registry struct {
	nc  *nats.Conn
	log *zerolog.Logger

	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	sub     *nats.Subscription
	members map[*core.Session]struct{}
}

// New connects to the broker at url.
func New(url string, logger *zerolog.Logger) (*Registry, error) {
	nc, err := nats.Connect(url, nats.Name("dialogd"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info().Str("url", url).Msg("connected to nats")

	return &Registry{
		nc:     nc,
		log:    logger,
		groups: make(map[string]*group),
	}, nil
}

// Join adds the session to the key's local member set, creating the
// subject subscription on first local member. Idempotent.
func (r *Registry) Join(key string, s *core.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		sub, err := r.nc.Subscribe(subjectPrefix+key, func(m *nats.Msg) {
			r.deliver(key, m.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
		g = &group{sub: sub, members: make(map[*core.Session]struct{})}
		r.groups[key] = g
	}
	g.members[s] = struct{}{}
	return nil
}

// Leave removes the session, dropping the subscription once the last
// local member is gone. No-op if the session never joined.
func (r *Registry) Leave(key string, s *core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		return
	}
	delete(g.members, s)
	if len(g.members) == 0 {
		if err := g.sub.Unsubscribe(); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("unsubscribe failed")
		}
		delete(r.groups, key)
	}
}

// Broadcast publishes the event to the key's subject. Delivery to local
// members happens via the subscription callback, same as for events
// published by other processes.
func (r *Registry) Broadcast(_ context.Context, key string, event *core.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.nc.Publish(subjectPrefix+key, data); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// deliver fans one received event out to the key's local members.
// Runs on the subscription's delivery goroutine, so events for a key
// arrive at each session in publish order.
func (r *Registry) deliver(key string, data []byte) {
	var event core.Event
	if err := json.Unmarshal(data, &event); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("dropping undecodable event")
		return
	}

	r.mu.Lock()
	g, ok := r.groups[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	members := make([]*core.Session, 0, len(g.members))
	for s := range g.members {
		members = append(members, s)
	}
	r.mu.Unlock()

	for _, s := range members {
		select {
		case s.Events <- &event:
		default:
			// Drop if slow consumer.
		}
	}
}

// Close drains the connection, letting in-flight deliveries finish.
func (r *Registry) Close() error {
	return r.nc.Drain()
}
