// Package invoice drives one payment request from creation to a terminal
// state. A session races two asynchronous sources scheduled at session
// start: the server-push subscription and a one-shot expiration timer.
// Whichever fires second checks the invoice snapshot, not arrival order, so
// a fully paid invoice never flips to expired.
package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"paylink/go-client/internal/rpc"
	"paylink/go-client/pkg/models"
)

var (
	// ErrNotCreated guards operations that need an invoice id, before the
	// invoice exists remotely.
	ErrNotCreated = errors.New("invoice: not yet created")

	ErrUnknownFormat   = errors.New("invoice: no payment URL for format")
	ErrMissingPrice    = errors.New("invoice: price is required")
	ErrMissingCurrency = errors.New("invoice: currency is required")
	ErrInvalidData     = errors.New("invoice: invalid invoice data")
)

// Payment URI formats served by the API.
const (
	FormatBIP21  = "BIP21"
	FormatBIP72  = "BIP72"
	FormatBIP72b = "BIP72b"
	FormatBIP73  = "BIP73"
)

// Session owns one invoice: its snapshot, the push subscription, and the
// expiration timer. It becomes inert once the invoice is terminal or Close
// is called.
type Session struct {
	busClient  *rpc.Client
	httpClient *http.Client
	logger     *slog.Logger
	hub        *notificationHub

	mu     sync.Mutex
	inv    models.Invoice
	timer  *time.Timer
	bus    *busSubscription
	closed bool
}

type SessionOption func(*sessionConfig)

type sessionConfig struct {
	busClient  *rpc.Client
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBusClient sets the public (unsigned, tokenless) channel used for the
// subscription handshake. Defaults to the channel the session was built
// with.
func WithBusClient(c *rpc.Client) SessionOption {
	return func(cfg *sessionConfig) { cfg.busClient = c }
}

// WithHTTPClient sets the HTTP client for the event stream.
func WithHTTPClient(hc *http.Client) SessionOption {
	return func(cfg *sessionConfig) { cfg.httpClient = hc }
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(cfg *sessionConfig) { cfg.logger = logger }
}

// Create issues a createInvoice call on a token-bound channel and starts a
// session for the result.
func Create(ctx context.Context, client *rpc.Client, price float64, currency string, opts ...SessionOption) (*Session, error) {
	if price == 0 {
		return nil, ErrMissingPrice
	}
	if currency == "" {
		return nil, ErrMissingCurrency
	}
	data, err := client.Call(ctx, "createInvoice", map[string]any{
		"price":    price,
		"currency": currency,
	})
	if err != nil {
		return nil, err
	}
	return sessionFromData(ctx, client, data, opts)
}

// Fetch loads an existing invoice by id over a public channel and starts a
// session for it.
func Fetch(ctx context.Context, client *rpc.Client, invoiceID string, opts ...SessionOption) (*Session, error) {
	if invoiceID == "" {
		return nil, ErrNotCreated
	}
	data, err := client.Call(ctx, "getInvoice", map[string]any{"invoiceId": invoiceID})
	if err != nil {
		return nil, err
	}
	return sessionFromData(ctx, client, data, opts)
}

func sessionFromData(ctx context.Context, client *rpc.Client, data json.RawMessage, opts []SessionOption) (*Session, error) {
	var inv models.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, ErrInvalidData
	}
	return NewSession(ctx, inv, client, opts...)
}

// NewSession starts a session over already-fetched invoice data: it opens
// the push subscription keyed by the invoice id and schedules the
// expiration timer for expirationTime - invoiceTime from now.
func NewSession(ctx context.Context, inv models.Invoice, client *rpc.Client, opts ...SessionOption) (*Session, error) {
	if inv.ID == "" {
		return nil, ErrNotCreated
	}

	cfg := sessionConfig{busClient: client, httpClient: http.DefaultClient, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		busClient:  cfg.busClient,
		httpClient: cfg.httpClient,
		logger:     cfg.logger,
		hub:        newNotificationHub(),
		inv:        inv,
	}

	ttl := time.Duration(inv.ExpirationTime-inv.InvoiceTime) * time.Millisecond
	if ttl < 0 {
		ttl = 0
	}
	s.timer = time.AfterFunc(ttl, s.expire)

	go s.subscribe(ctx)
	return s, nil
}

// Subscribe registers a notification channel. The cancel func unregisters
// it; calling cancel twice is a no-op.
func (s *Session) Subscribe() (<-chan Notification, func()) {
	return s.hub.subscribe()
}

// Snapshot returns a copy of the current invoice state.
func (s *Session) Snapshot() models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv
}

// TimeRemaining reports how long the invoice can still be paid; zero once
// the expiration time has passed.
func (s *Session) TimeRemaining() time.Duration {
	s.mu.Lock()
	expiration := s.inv.ExpirationTime
	s.mu.Unlock()
	remaining := time.Until(time.UnixMilli(expiration))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PaymentURL returns the payment URI for a format (BIP21/BIP72/BIP72b/
// BIP73). A read-only view: never a state transition.
func (s *Session) PaymentURL(format string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inv.ID == "" {
		return "", ErrNotCreated
	}
	uri, ok := s.inv.PaymentURLs[format]
	if !ok || uri == "" {
		return "", ErrUnknownFormat
	}
	return uri, nil
}

// Close tears the session down: timer cancelled, subscription closed,
// notification channels closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	bus := s.bus
	s.bus = nil
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if bus != nil {
		bus.Close()
	}
	s.hub.closeAll()
}

type busHandshake struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// subscribe performs the getInvoiceBusToken handshake and opens the event
// stream. Handshake or stream failures surface as SubscriptionError
// notifications; the expiration timer keeps running regardless.
//
// The session can reach a terminal state while the handshake is still in
// flight (a near-expiry invoice, or a payment racing the handshake). The
// terminal check therefore runs both before the call and again before the
// stream is kept, so a late handshake never leaves a subscription open
// against a resolved invoice.
func (s *Session) subscribe(ctx context.Context) {
	s.mu.Lock()
	invoiceID := s.inv.ID
	done := s.resolvedLocked()
	s.mu.Unlock()
	if done {
		return
	}

	data, err := s.busClient.Call(ctx, "getInvoiceBusToken", map[string]any{"invoiceId": invoiceID})
	if err != nil {
		s.hub.publish(Notification{Kind: SubscriptionError, Err: err})
		return
	}
	var handshake busHandshake
	if err := json.Unmarshal(data, &handshake); err != nil || handshake.URL == "" {
		s.hub.publish(Notification{Kind: SubscriptionError, Err: ErrInvalidData})
		return
	}

	s.mu.Lock()
	done = s.resolvedLocked()
	s.mu.Unlock()
	if done {
		return
	}

	bus := openBus(ctx, s.httpClient, handshake.URL, handshake.Token, s.handleBusEvent, func(err error) {
		s.logger.Debug("bus subscription error", "invoice_id", invoiceID, "err", err)
		s.hub.publish(Notification{Kind: SubscriptionError, Err: err})
	})

	s.mu.Lock()
	if s.resolvedLocked() || s.bus != nil {
		s.mu.Unlock()
		bus.Close()
		return
	}
	s.bus = bus
	s.mu.Unlock()
}

// resolvedLocked reports whether the session no longer needs push updates:
// closed, expired, or fully paid. Callers hold s.mu.
func (s *Session) resolvedLocked() bool {
	return s.closed || s.inv.Expired() || s.inv.PaidFull()
}

func (s *Session) handleBusEvent(ev busEvent) {
	switch ev.name {
	case "connect":
		s.hub.publish(Notification{Kind: Connected})
	case "statechange":
		var update models.Invoice
		if err := json.Unmarshal([]byte(ev.data), &update); err != nil {
			s.hub.publish(Notification{Kind: SubscriptionError, Err: ErrInvalidData})
			return
		}
		s.applyUpdate(update)
	}
}

// applyUpdate replaces the snapshot with a push update. Once the snapshot is
// terminal (expired, or fully paid) no further transition is applied.
func (s *Session) applyUpdate(update models.Invoice) {
	s.mu.Lock()
	if s.resolvedLocked() {
		s.mu.Unlock()
		return
	}

	switch update.Status {
	case models.InvoiceStatusNew:
		// Snapshot refresh only; nothing paid yet.
		s.inv = update
		s.mu.Unlock()
		return
	case models.InvoiceStatusPaid, models.InvoiceStatusConfirmed, models.InvoiceStatusComplete:
		s.inv = update
		snapshot := s.inv
		var bus *busSubscription
		if snapshot.PaidFull() {
			// Fully paid: no further updates needed.
			bus = s.bus
			s.bus = nil
		}
		s.mu.Unlock()
		if bus != nil {
			bus.Close()
		}
		s.hub.publish(Notification{Kind: PaymentUpdate, Invoice: snapshot})
		return
	}
	s.mu.Unlock()
}

// expire runs when the timer fires. The check is against the current
// snapshot: a fully paid invoice makes the timer a no-op even if it fires
// after its scheduled moment.
func (s *Session) expire() {
	s.mu.Lock()
	if s.closed || s.inv.PaidFull() {
		s.mu.Unlock()
		return
	}
	s.inv.Status = models.InvoiceStatusExpired
	snapshot := s.inv
	bus := s.bus
	s.bus = nil
	s.mu.Unlock()

	if bus != nil {
		bus.Close()
	}
	s.hub.publish(Notification{Kind: Expired, Invoice: snapshot})
}
