package identity

import (
	"testing"
	"time"
)

const testPrivateKey = "6bab0a4655d2417fcdf72c0db76f1198e611febb36a97d7f980e1111f8e9b6ba"

func TestGenerateDerivesStableFingerprint(t *testing.T) {
	id, err := Generate("Nakomotos Widgets", WithPrivateKey(testPrivateKey))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if got, want := id.ID(), "Tf1r7mSKo61KMj58HuM4xT7eX6WFgyrryA6"; got != want {
		t.Fatalf("fingerprint mismatch: got %s want %s", got, want)
	}

	again, err := Generate("Different Label", WithPrivateKey(testPrivateKey))
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	if again.ID() != id.ID() {
		t.Fatal("same private key should derive the same id")
	}
	if again.PublicKey() != id.PublicKey() {
		t.Fatal("same private key should derive the same public key")
	}
}

func TestGenerateFreshKey(t *testing.T) {
	a, err := Generate("First")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, err := Generate("Second")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatal("fresh keys should not collide")
	}
	if a.DateCreated() == 0 {
		t.Fatal("dateCreated should be set")
	}
}

func TestGenerateRejectsInvalidLabels(t *testing.T) {
	cases := []string{
		"",
		"<div></div>",
		"label\nwith newline",
		"0123456789012345678901234567890123456789012345678901234567890", // 61 chars
	}
	for _, label := range cases {
		if _, err := Generate(label, WithPrivateKey(testPrivateKey)); err != ErrInvalidLabel {
			t.Fatalf("label %q: got %v, want ErrInvalidLabel", label, err)
		}
	}
}

func TestGenerateRejectsBadPrivateKey(t *testing.T) {
	for _, bad := range []string{"zz", "abcd", ""} {
		if bad == "" {
			continue
		}
		if _, err := Generate("Label", WithPrivateKey(bad)); err != ErrInvalidPrivateKey {
			t.Fatalf("key %q: got %v, want ErrInvalidPrivateKey", bad, err)
		}
	}
}

func TestNonceIncrement(t *testing.T) {
	id, err := Generate("Increment", WithPrivateKey(testPrivateKey), WithNonceStrategy(NonceIncrement))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	n1 := id.Nonce()
	n2 := id.Nonce()
	if n1 == nil || n2 == nil {
		t.Fatal("increment nonces should not be nil")
	}
	if *n2-*n1 != 1 {
		t.Fatalf("successive nonces should differ by exactly 1, got %d and %d", *n1, *n2)
	}
	if id.NonceState() != *n2+1 {
		t.Fatalf("nonce state should track the next value, got %d", id.NonceState())
	}
}

func TestNonceTime(t *testing.T) {
	id, err := Generate("Time", WithPrivateKey(testPrivateKey), WithNonceStrategy(NonceTime))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	before := time.Now().UnixMilli()
	n := id.Nonce()
	after := time.Now().UnixMilli()
	if n == nil {
		t.Fatal("time nonce should not be nil")
	}
	if *n < before || *n > after {
		t.Fatalf("time nonce %d outside [%d, %d]", *n, before, after)
	}
}

func TestNonceDisabled(t *testing.T) {
	id, err := Generate("Nononce", WithPrivateKey(testPrivateKey), WithNonceStrategy(NonceDisabled))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if id.Nonce() != nil {
		t.Fatal("disabled strategy should return nil")
	}
}

func TestNonceStrategyValidation(t *testing.T) {
	if _, err := Generate("Label", WithNonceStrategy(NonceStrategy("bogus"))); err != ErrInvalidNonceStrategy {
		t.Fatalf("got %v, want ErrInvalidNonceStrategy", err)
	}
}

func TestSignDeterministic(t *testing.T) {
	id, err := Generate("Signer", WithPrivateKey(testPrivateKey))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	s1 := id.Sign([]byte("cellar door"))
	s2 := id.Sign([]byte("cellar door"))
	if s1 == "" {
		t.Fatal("signature should not be empty")
	}
	if s1 != s2 {
		t.Fatal("signatures over the same payload should be deterministic")
	}
	if id.Sign([]byte("other payload")) == s1 {
		t.Fatal("different payloads should not share a signature")
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("mnemonic generation failed: %v", err)
	}
	if !ValidateMnemonic(mnemonic) {
		t.Fatal("generated mnemonic should validate")
	}

	a, err := FromMnemonic(mnemonic, "Backup")
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	b, err := FromMnemonic(mnemonic, "Backup")
	if err != nil {
		t.Fatalf("second rebuild failed: %v", err)
	}
	if a.ID() != b.ID() || a.PublicKey() != b.PublicKey() {
		t.Fatal("same mnemonic should rebuild the same identity")
	}

	if _, err := FromMnemonic("not a real phrase", "Backup"); err != ErrInvalidMnemonic {
		t.Fatalf("got %v, want ErrInvalidMnemonic", err)
	}
}
