package invoice

import (
	"sync"
	"time"

	"paylink/go-client/pkg/models"
)

// NotificationKind tags the session event variants.
type NotificationKind string

const (
	// Connected: the push subscription handshake completed.
	Connected = NotificationKind("connected")
	// SubscriptionError: the push channel failed; the expiration timer is
	// unaffected.
	SubscriptionError = NotificationKind("suberror")
	// PaymentUpdate: a push update replaced the invoice snapshot.
	PaymentUpdate = NotificationKind("payment")
	// Expired: the expiration timer forced the invoice to expired.
	Expired = NotificationKind("expired")
)

// Notification is one session event. Invoice is the snapshot at publish time
// for PaymentUpdate and Expired; Err is set for SubscriptionError.
type Notification struct {
	Kind      NotificationKind
	Invoice   models.Invoice
	Err       error
	Timestamp time.Time
}

// notificationHub fans session events out to explicitly registered
// subscriber channels. Slow subscribers are dropped rather than blocking the
// session.
type notificationHub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
}

func newNotificationHub() *notificationHub {
	return &notificationHub{subs: make(map[int]chan Notification)}
}

func (h *notificationHub) publish(n Notification) {
	n.Timestamp = time.Now().UTC()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
}

func (h *notificationHub) subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Notification, 16)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return ch, cancel
}

func (h *notificationHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
