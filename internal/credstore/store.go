// Package credstore persists client identities and capability tokens over an
// injected key-value document backend. All mutations follow a whole-document
// read-modify-write discipline; the store assumes a single logical actor and
// does not serialize concurrent writers.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"paylink/go-client/internal/identity"
	"paylink/go-client/internal/securestore"
	"paylink/go-client/pkg/models"
)

const (
	identitiesKey = "identities"
	tokensKey     = "tokens"
)

// Store resolves and persists identities and tokens.
type Store struct {
	kv KV
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

// ListIdentityIDs returns the stored identity fingerprints, sorted; empty
// when none are stored.
func (s *Store) ListIdentityIDs() ([]string, error) {
	identities, err := s.loadIdentities()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(identities))
	for id := range identities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveIdentity persists an identity record. With a passphrase the private
// key is stored only as a securestore envelope; without one it is stored in
// plaintext, the explicit weaker mode.
func (s *Store) SaveIdentity(ident *identity.Identity, passphrase string) (models.IdentityRecord, error) {
	record := models.IdentityRecord{
		ID:            ident.ID(),
		Label:         ident.Label(),
		PublicKey:     ident.PublicKey(),
		NonceStrategy: string(ident.NonceStrategy()),
		Nonce:         ident.NonceState(),
		DateCreated:   ident.DateCreated(),
	}
	if passphrase != "" {
		sealed, err := securestore.Encrypt(passphrase, []byte(ident.ExportPrivateKey()))
		if err != nil {
			return models.IdentityRecord{}, err
		}
		record.PrivateKeyEncrypted = sealed
	} else {
		record.PrivateKey = ident.ExportPrivateKey()
	}

	identities, err := s.loadIdentities()
	if err != nil {
		return models.IdentityRecord{}, err
	}
	identities[record.ID] = record
	if err := s.persist(identitiesKey, identities); err != nil {
		return models.IdentityRecord{}, err
	}
	return record, nil
}

// GetIdentity loads and reconstructs an identity. A wrong passphrase on an
// encrypted record surfaces as securestore.ErrAuthFailed so the caller can
// re-prompt instead of treating it as data loss.
func (s *Store) GetIdentity(id, passphrase string) (*identity.Identity, error) {
	identities, err := s.loadIdentities()
	if err != nil {
		return nil, err
	}
	record, ok := identities[id]
	if !ok {
		return nil, ErrNotFound
	}

	privHex := record.PrivateKey
	if len(record.PrivateKeyEncrypted) > 0 {
		plain, err := securestore.Decrypt(passphrase, record.PrivateKeyEncrypted)
		if err != nil {
			return nil, err
		}
		privHex = string(plain)
	}

	strategy := identity.NonceStrategy(record.NonceStrategy)
	if strategy == "" {
		strategy = identity.NonceTime
	}
	return identity.Generate(record.Label,
		identity.WithPrivateKey(privHex),
		identity.WithNonceStrategy(strategy),
		identity.WithNonceState(record.Nonce),
		identity.WithDateCreated(record.DateCreated),
	)
}

func (s *Store) loadIdentities() (map[string]models.IdentityRecord, error) {
	identities := make(map[string]models.IdentityRecord)
	if err := s.loadDocument(identitiesKey, &identities); err != nil {
		return nil, err
	}
	return identities, nil
}

func (s *Store) loadDocument(key string, out any) error {
	raw, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("credstore: corrupt %s document: %w", key, err)
	}
	return nil
}

func (s *Store) persist(key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.kv.Set(key, raw)
}
