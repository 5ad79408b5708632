// Package identity implements cryptographic client identities for the
// payment API: a secp256k1 keypair, a SIN fingerprint derived from the
// public key, request signing and nonce production.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	ErrInvalidLabel         = errors.New("invalid identity label")
	ErrInvalidPrivateKey    = errors.New("invalid private key")
	ErrInvalidNonceStrategy = errors.New("invalid nonce strategy")
)

// NonceStrategy selects how Nonce produces per-request replay protection.
type NonceStrategy string

const (
	NonceTime      = NonceStrategy("time")
	NonceIncrement = NonceStrategy("increment")
	NonceDisabled  = NonceStrategy("disabled")
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// ValidLabel enforces both the character pattern and the length bound. Every
// path that accepts a label goes through this check.
func ValidLabel(label string) bool {
	return len(label) >= 1 && len(label) <= 60 && labelPattern.MatchString(label)
}

// Identity owns a secp256k1 keypair and exposes only derived material: the
// SIN id, the compressed public key, signatures and nonces. The private key
// never leaves the package except through ExportPrivateKey, which exists for
// the credential store's persistence path.
type Identity struct {
	id          string
	label       string
	publicKey   string
	priv        *secp256k1.PrivateKey
	strategy    NonceStrategy
	dateCreated int64

	mu        sync.Mutex
	lastNonce int64
}

// Option adjusts Generate beyond its defaults.
type Option func(*options) error

type options struct {
	privHex     string
	strategy    NonceStrategy
	lastNonce   int64
	dateCreated int64
}

// WithPrivateKey supplies existing key material as 32 hex-encoded bytes
// instead of generating a fresh key.
func WithPrivateKey(hexKey string) Option {
	return func(o *options) error {
		o.privHex = hexKey
		return nil
	}
}

// WithNonceStrategy overrides the default "time" strategy.
func WithNonceStrategy(s NonceStrategy) Option {
	return func(o *options) error {
		switch s {
		case NonceTime, NonceIncrement, NonceDisabled:
			o.strategy = s
			return nil
		}
		return ErrInvalidNonceStrategy
	}
}

// WithNonceState seeds the increment counter, used when reloading a
// persisted identity.
func WithNonceState(last int64) Option {
	return func(o *options) error {
		o.lastNonce = last
		return nil
	}
}

// WithDateCreated preserves the original creation time of a reloaded
// identity.
func WithDateCreated(epochMS int64) Option {
	return func(o *options) error {
		o.dateCreated = epochMS
		return nil
	}
}

// Generate builds an identity for label, creating a private key when none is
// supplied. Construction is atomic: any validation failure returns before
// key material is retained.
func Generate(label string, opts ...Option) (*Identity, error) {
	if !ValidLabel(label) {
		return nil, ErrInvalidLabel
	}
	o := options{strategy: NonceTime}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	var priv *secp256k1.PrivateKey
	if o.privHex == "" {
		var err error
		priv, err = secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
	} else {
		raw, err := hex.DecodeString(o.privHex)
		if err != nil || len(raw) != 32 {
			return nil, ErrInvalidPrivateKey
		}
		priv = secp256k1.PrivKeyFromBytes(raw)
		if priv.Key.IsZero() {
			return nil, ErrInvalidPrivateKey
		}
	}

	pubBytes := priv.PubKey().SerializeCompressed()
	created := o.dateCreated
	if created == 0 {
		created = time.Now().UnixMilli()
	}
	return &Identity{
		id:          SINFromPublicKey(pubBytes),
		label:       label,
		publicKey:   hex.EncodeToString(pubBytes),
		priv:        priv,
		strategy:    o.strategy,
		lastNonce:   o.lastNonce,
		dateCreated: created,
	}, nil
}

func (id *Identity) ID() string                   { return id.id }
func (id *Identity) Label() string                { return id.label }
func (id *Identity) PublicKey() string            { return id.publicKey }
func (id *Identity) DateCreated() int64           { return id.dateCreated }
func (id *Identity) NonceStrategy() NonceStrategy { return id.strategy }

// Sign produces a deterministic ECDSA signature (RFC 6979) over
// sha256(payload), DER-encoded as hex. No network or storage side effects.
func (id *Identity) Sign(payload []byte) string {
	digest := sha256.Sum256(payload)
	sig := ecdsa.Sign(id.priv, digest[:])
	return hex.EncodeToString(sig.Serialize())
}

// Nonce returns the next replay-protection value, or nil under the disabled
// strategy (the caller must then omit the nonce field entirely). Under
// increment the current counter is returned and then advanced by exactly 1,
// strictly monotonic per instance.
func (id *Identity) Nonce() *int64 {
	switch id.strategy {
	case NonceTime:
		v := time.Now().UnixMilli()
		return &v
	case NonceIncrement:
		id.mu.Lock()
		v := id.lastNonce
		id.lastNonce++
		id.mu.Unlock()
		return &v
	}
	return nil
}

// NonceState snapshots the increment counter for persistence.
func (id *Identity) NonceState() int64 {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.lastNonce
}

// ExportPrivateKey returns the hex private key for the credential store's
// persistence path. Callers outside the store have no business calling this.
func (id *Identity) ExportPrivateKey() string {
	return hex.EncodeToString(id.priv.Serialize())
}
