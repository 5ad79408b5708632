package identity

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// SIN prefix bytes: version 0x0F, type 0x02 (ephemeral).
const (
	sinVersion = 0x0F
	sinType    = 0x02
)

// SINFromPublicKey derives the SIN fingerprint from a serialized public key:
// base58check over 0x0F 0x02 || ripemd160(sha256(pub)). The result is a pure
// function of the key, stable across processes.
func SINFromPublicKey(pub []byte) string {
	sha := sha256.Sum256(pub)
	rip := ripemd160.New()
	rip.Write(sha[:])

	payload := append([]byte{sinVersion, sinType}, rip.Sum(nil)...)
	check1 := sha256.Sum256(payload)
	check2 := sha256.Sum256(check1[:])
	return base58.Encode(append(payload, check2[:4]...))
}
