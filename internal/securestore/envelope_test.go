package securestore

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("6bab0a4655d2417fcdf72c0db76f1198e611febb36a97d7f980e1111f8e9b6ba")

	sealed, err := Encrypt("correct horse", plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	got, err := Decrypt("correct horse", sealed)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("decrypted plaintext mismatch")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	sealed, err := Encrypt("right", []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("wrong", sealed); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("got %v, want ErrAuthFailed", err)
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	if _, err := Decrypt("any", []byte("not json")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
	if _, err := Decrypt("any", []byte(`{"version":9,"kdf":"argon2id"}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unsupported version: got %v, want ErrInvalid", err)
	}
}
