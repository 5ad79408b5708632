package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

const hkdfInfoSigning = "paylink/identity/signing/v1"

// GenerateMnemonic produces a fresh BIP39 backup phrase for a new identity.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports whether a phrase is well formed.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(mnemonic))
}

// FromMnemonic deterministically rebuilds an identity from a backup phrase:
// the BIP39 seed is expanded through HKDF-SHA256 into the private scalar, so
// the same phrase always yields the same id and public key.
func FromMnemonic(mnemonic, label string, opts ...Option) (*Identity, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoSigning))
	scalar := make([]byte, 32)
	if _, err := io.ReadFull(reader, scalar); err != nil {
		return nil, err
	}
	opts = append(opts, WithPrivateKey(hex.EncodeToString(scalar)))
	return Generate(label, opts...)
}
