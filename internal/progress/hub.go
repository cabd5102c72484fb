// Package progress fans out pipeline stage notifications to whichever
// clients are currently listening for a user. Delivery is best-effort: there
// is no buffering for disconnected clients and no replay.
package progress

import (
	"strings"
	"sync"

	"github.com/fishit-backend/internal/logging"
	"github.com/fishit-backend/internal/types"
)

// subscriptionBuffer bounds how far a slow consumer can lag before updates
// are dropped for it.
const subscriptionBuffer = 16

// Subscription is one live client stream for a single user.
type Subscription struct {
	User string
	C    <-chan types.ProgressUpdate

	ch chan types.ProgressUpdate
}

// Hub is the per-user fan-out registry. Many subscriptions may exist for one
// user (multiple tabs); each receives every update published for that user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	logger *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Hub{
		subs:   make(map[string][]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a new stream for the user and immediately queues the
// synthetic connected notification.
func (h *Hub) Subscribe(user string) *Subscription {
	user = strings.ToLower(user)

	ch := make(chan types.ProgressUpdate, subscriptionBuffer)
	sub := &Subscription{User: user, C: ch, ch: ch}

	h.mu.Lock()
	h.subs[user] = append(h.subs[user], sub)
	h.mu.Unlock()

	// The buffer is empty here, so the connected message cannot be dropped.
	ch <- types.ProgressUpdate{
		User:    user,
		Stage:   types.StageGenerating,
		Message: "Connected to NFT generator",
	}

	return sub
}

// Unsubscribe removes the stream and closes its channel. The last
// subscription for a user removes the user's key entirely.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.User]
	for i, s := range subs {
		if s == sub {
			h.subs[sub.User] = append(subs[:i], subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(h.subs[sub.User]) == 0 {
		delete(h.subs, sub.User)
	}
}

// Publish delivers an update to every live subscription for its user. Sends
// never block the publisher: a subscriber whose buffer is full loses the
// update (its stream is already stale).
func (h *Hub) Publish(update types.ProgressUpdate) {
	user := strings.ToLower(update.User)
	update.User = user

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[user] {
		select {
		case sub.ch <- update:
		default:
			h.logger.WithFields(map[string]interface{}{
				"user":  user,
				"stage": update.Stage,
			}).Warn("Dropped progress update for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a user.
func (h *Hub) SubscriberCount(user string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.ToLower(user)])
}
