package credstore

import (
	"errors"

	"paylink/go-client/internal/identity"
	"paylink/go-client/pkg/models"
)

var (
	ErrMissingHost   = errors.New("credstore: token host is required")
	ErrMissingFacade = errors.New("credstore: token facade is required")
	ErrMissingToken  = errors.New("credstore: token string is required")
	ErrInvalidLabel  = errors.New("credstore: token label is invalid")

	// ErrTokenConflict rejects a second grant of the same capability: a
	// token for the same (host, facade) where either side lacks a resource
	// or both name the same one.
	ErrTokenConflict = errors.New("credstore: token with the same capability already saved")

	// ErrAmbiguousToken means more than one token matches and the query
	// must name a resource to disambiguate.
	ErrAmbiguousToken = errors.New("credstore: more than one matching token, resource required")
)

// TokenQuery selects a stored token by host and capability scope. Resource
// disambiguates when several tokens share the scope.
type TokenQuery struct {
	Host     string
	Facade   string
	Resource string
}

// SaveToken validates and persists a token, keyed by the token string.
func (s *Store) SaveToken(token models.Token) (models.Token, error) {
	if token.Host == "" {
		return models.Token{}, ErrMissingHost
	}
	if token.Facade == "" {
		return models.Token{}, ErrMissingFacade
	}
	if token.Token == "" {
		return models.Token{}, ErrMissingToken
	}
	if token.Label != "" && !identity.ValidLabel(token.Label) {
		return models.Token{}, ErrInvalidLabel
	}

	tokens, err := s.loadTokens()
	if err != nil {
		return models.Token{}, err
	}
	for _, existing := range tokens {
		if existing.Host != token.Host || existing.Facade != token.Facade {
			continue
		}
		if token.Resource == "" || existing.Resource == "" || existing.Resource == token.Resource {
			return models.Token{}, ErrTokenConflict
		}
	}

	tokens[token.Token] = token
	if err := s.persist(tokensKey, tokens); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

// GetToken resolves a query against the stored tokens. Zero matches is
// ErrNotFound; several matches require a resource in the query; a resource
// that matches none of the candidates is ErrNotFound.
func (s *Store) GetToken(query TokenQuery) (models.Token, error) {
	if query.Host == "" {
		return models.Token{}, ErrMissingHost
	}
	if query.Facade == "" {
		return models.Token{}, ErrMissingFacade
	}

	tokens, err := s.loadTokens()
	if err != nil {
		return models.Token{}, err
	}
	var matched []models.Token
	for _, t := range tokens {
		if t.Host == query.Host && t.Facade == query.Facade {
			matched = append(matched, t)
		}
	}

	switch {
	case len(matched) == 0:
		return models.Token{}, ErrNotFound
	case len(matched) == 1:
		t := matched[0]
		if query.Resource != "" && t.Resource != "" && t.Resource != query.Resource {
			return models.Token{}, ErrNotFound
		}
		return t, nil
	}

	if query.Resource == "" {
		return models.Token{}, ErrAmbiguousToken
	}
	for _, t := range matched {
		if t.Resource == query.Resource {
			return t, nil
		}
	}
	return models.Token{}, ErrNotFound
}

func (s *Store) loadTokens() (map[string]models.Token, error) {
	tokens := make(map[string]models.Token)
	if err := s.loadDocument(tokensKey, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
