package credstore

import (
	"errors"
	"strings"
	"testing"

	"paylink/go-client/pkg/models"
)

func merchantToken(tok, resource string) models.Token {
	return models.Token{
		Host:     "test.bitpay.com",
		Facade:   "merchant",
		Token:    tok,
		Resource: resource,
	}
}

func TestSaveTokenValidation(t *testing.T) {
	store := New(newMemoryKV())

	cases := []struct {
		name  string
		token models.Token
		want  error
	}{
		{"missing host", models.Token{Facade: "merchant", Token: "abc"}, ErrMissingHost},
		{"missing facade", models.Token{Host: "h", Token: "abc"}, ErrMissingFacade},
		{"missing token", models.Token{Host: "h", Facade: "merchant"}, ErrMissingToken},
		{"bad label", models.Token{Host: "h", Facade: "merchant", Token: "abc", Label: "<script>"}, ErrInvalidLabel},
		{"long label", models.Token{Host: "h", Facade: "merchant", Token: "abc", Label: strings.Repeat("a", 61)}, ErrInvalidLabel},
	}
	for _, tc := range cases {
		if _, err := store.SaveToken(tc.token); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestSaveTokenRejectsDuplicateCapability(t *testing.T) {
	store := New(newMemoryKV())
	if _, err := store.SaveToken(merchantToken("first", "")); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := store.SaveToken(merchantToken("second", "")); !errors.Is(err, ErrTokenConflict) {
		t.Fatalf("duplicate scope: got %v, want ErrTokenConflict", err)
	}
	// A resource on only one side still collides: the unscoped token covers
	// every resource.
	if _, err := store.SaveToken(merchantToken("third", "resourceA")); !errors.Is(err, ErrTokenConflict) {
		t.Fatalf("resource vs unscoped: got %v, want ErrTokenConflict", err)
	}
}

func TestSaveTokenAcceptsDistinctResources(t *testing.T) {
	store := New(newMemoryKV())
	if _, err := store.SaveToken(merchantToken("first", "resourceA")); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := store.SaveToken(merchantToken("second", "resourceB")); err != nil {
		t.Fatalf("distinct resource should be accepted: %v", err)
	}
	if _, err := store.SaveToken(merchantToken("third", "resourceA")); !errors.Is(err, ErrTokenConflict) {
		t.Fatalf("same resource: got %v, want ErrTokenConflict", err)
	}
}

func TestGetTokenResolution(t *testing.T) {
	store := New(newMemoryKV())

	if _, err := store.GetToken(TokenQuery{Host: "test.bitpay.com", Facade: "merchant"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: got %v, want ErrNotFound", err)
	}

	if _, err := store.SaveToken(merchantToken("first", "resourceA")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	tok, err := store.GetToken(TokenQuery{Host: "test.bitpay.com", Facade: "merchant"})
	if err != nil {
		t.Fatalf("single match failed: %v", err)
	}
	if tok.Token != "first" {
		t.Fatalf("unexpected token: %s", tok.Token)
	}

	if _, err := store.SaveToken(merchantToken("second", "resourceB")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := store.GetToken(TokenQuery{Host: "test.bitpay.com", Facade: "merchant"}); !errors.Is(err, ErrAmbiguousToken) {
		t.Fatalf("two matches, no resource: got %v, want ErrAmbiguousToken", err)
	}

	tok, err = store.GetToken(TokenQuery{Host: "test.bitpay.com", Facade: "merchant", Resource: "resourceB"})
	if err != nil {
		t.Fatalf("resource query failed: %v", err)
	}
	if tok.Token != "second" {
		t.Fatalf("unexpected token: %s", tok.Token)
	}

	if _, err := store.GetToken(TokenQuery{Host: "test.bitpay.com", Facade: "merchant", Resource: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unmatched resource: got %v, want ErrNotFound", err)
	}

	if _, err := store.GetToken(TokenQuery{Host: "other.host", Facade: "merchant"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other host: got %v, want ErrNotFound", err)
	}

	if _, err := store.GetToken(TokenQuery{Facade: "merchant"}); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("query without host: got %v, want ErrMissingHost", err)
	}
}
