package services

import (
	"log/slog"
	"sync"

	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
)

// Token identifies a ChangeFeed subscription.
type Token uint64

// AllOrganizations subscribes to events of every organization.
const AllOrganizations = ""

type subscription struct {
	orgID string
	fn    func(domain.Event)
}

// ChangeFeed is the in-process publish/subscribe channel for queue change
// events. Callbacks run synchronously on the publishing goroutine and must
// not block.
type ChangeFeed struct {
	mu     sync.RWMutex
	next   Token
	subs   map[Token]subscription
	logger *slog.Logger
}

var _ ports.EventBroadcaster = (*ChangeFeed)(nil)

// NewChangeFeed creates an empty feed.
func NewChangeFeed(logger *slog.Logger) *ChangeFeed {
	return &ChangeFeed{
		subs:   make(map[Token]subscription),
		logger: logger.With("component", "change_feed"),
	}
}

// Subscribe registers fn for events of orgID, or of every organization when
// orgID is AllOrganizations.
func (f *ChangeFeed) Subscribe(orgID string, fn func(domain.Event)) Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.subs[f.next] = subscription{orgID: orgID, fn: fn}
	return f.next
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (f *ChangeFeed) Unsubscribe(token Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, token)
}

// SubscriberCount returns the number of active subscriptions.
func (f *ChangeFeed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Broadcast delivers event to every matching subscriber.
func (f *ChangeFeed) Broadcast(event domain.Event) error {
	f.mu.RLock()
	targets := make([]func(domain.Event), 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.orgID == AllOrganizations || sub.orgID == event.OrganizationID {
			targets = append(targets, sub.fn)
		}
	}
	f.mu.RUnlock()

	for _, fn := range targets {
		f.deliver(fn, event)
	}
	return nil
}

func (f *ChangeFeed) deliver(fn func(domain.Event), event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("change feed subscriber panicked",
				"panic", r,
				"event_type", event.Type,
				"org_id", event.OrganizationID,
			)
		}
	}()
	fn(event)
}

// MultiBroadcaster publishes each event to several broadcasters, e.g. the
// local feed and the cross-instance bus.
type MultiBroadcaster []ports.EventBroadcaster

var _ ports.EventBroadcaster = MultiBroadcaster(nil)

// Broadcast returns the first error but always tries every target.
func (m MultiBroadcaster) Broadcast(event domain.Event) error {
	var firstErr error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Broadcast(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
