package rpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"paylink/go-client/internal/identity"
)

const testPrivateKey = "6bab0a4655d2417fcdf72c0db76f1198e611febb36a97d7f980e1111f8e9b6ba"

type fakeTransport struct {
	lastReq Request
	resp    Response
	err     error
}

func (f *fakeTransport) Do(_ context.Context, req Request) (Response, error) {
	f.lastReq = req
	if f.err != nil {
		return Response{}, f.err
	}
	return f.resp, nil
}

func okResponse(data string) Response {
	return Response{StatusCode: 200, Body: []byte(`{"data":` + data + `}`)}
}

func TestCallPublicEnvelope(t *testing.T) {
	ft := &fakeTransport{resp: okResponse(`{"rates":[]}`)}
	client := New("test.bitpay.com", 443, WithTransport(ft))

	data, err := client.Call(context.Background(), "getRates", map[string]any{})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if string(data) != `{"rates":[]}` {
		t.Fatalf("unexpected data: %s", data)
	}

	req := ft.lastReq
	if req.URL != "https://test.bitpay.com/api" {
		t.Fatalf("unexpected URL: %s", req.URL)
	}
	if req.Method != "POST" {
		t.Fatalf("unexpected method: %s", req.Method)
	}
	for header, want := range map[string]string{
		"Content-Type":     "application/json",
		"Cache-Control":    "no-cache",
		"X-Accept-Version": "2.0.0",
	} {
		if got := req.Headers[header]; got != want {
			t.Fatalf("header %s: got %q want %q", header, got, want)
		}
	}
	if _, ok := req.Headers["X-Identity"]; ok {
		t.Fatal("public call must not carry X-Identity")
	}
	if _, ok := req.Headers["X-Signature"]; ok {
		t.Fatal("public call must not carry X-Signature")
	}

	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["method"] != "getRates" {
		t.Fatalf("unexpected body method: %v", body["method"])
	}
	if body["params"] != "{}" {
		t.Fatalf("params should be a JSON-encoded string, got %v", body["params"])
	}
	if _, ok := body["nonce"]; ok {
		t.Fatal("unbound identity must not produce a nonce")
	}
}

func TestCallTokenPath(t *testing.T) {
	ft := &fakeTransport{resp: okResponse(`[]`)}
	client := New("test.bitpay.com", 443, WithTransport(ft), WithToken("70163c90f"))

	if _, err := client.Call(context.Background(), "getInvoices", map[string]any{}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if ft.lastReq.URL != "https://test.bitpay.com/api/70163c90f" {
		t.Fatalf("token should extend the path, got %s", ft.lastReq.URL)
	}
}

func TestCallNonStandardPortInURL(t *testing.T) {
	ft := &fakeTransport{resp: okResponse(`[]`)}
	client := New("localhost", 8443, WithTransport(ft))
	if _, err := client.Call(context.Background(), "getRates", map[string]any{}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if ft.lastReq.URL != "https://localhost:8443/api" {
		t.Fatalf("unexpected URL: %s", ft.lastReq.URL)
	}
}

func TestCallSignedEnvelope(t *testing.T) {
	ident, err := identity.Generate("Signer",
		identity.WithPrivateKey(testPrivateKey),
		identity.WithNonceStrategy(identity.NonceIncrement))
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	ft := &fakeTransport{resp: okResponse(`{"id":"x"}`)}
	client := New("test.bitpay.com", 443, WithTransport(ft), WithToken("tok"), WithIdentity(ident))

	if _, err := client.Call(context.Background(), "createInvoice", map[string]any{"price": 10}); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	req := ft.lastReq
	if got := req.Headers["X-Identity"]; got != ident.PublicKey() {
		t.Fatalf("X-Identity should be the public key, got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if _, ok := body["nonce"]; !ok {
		t.Fatal("signed call should carry a nonce")
	}

	// The signature must verify over the absolute URL plus the exact body.
	sigBytes, err := hex.DecodeString(req.Headers["X-Signature"])
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		t.Fatalf("signature is not DER: %v", err)
	}
	pubBytes, err := hex.DecodeString(ident.PublicKey())
	if err != nil {
		t.Fatalf("public key is not hex: %v", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		t.Fatalf("public key did not parse: %v", err)
	}
	digest := sha256.Sum256(append([]byte(req.URL), req.Body...))
	if !sig.Verify(digest[:], pub) {
		t.Fatal("signature did not verify over URL+body")
	}
}

func TestCallDisabledNonceOmitted(t *testing.T) {
	ident, err := identity.Generate("Nononce",
		identity.WithPrivateKey(testPrivateKey),
		identity.WithNonceStrategy(identity.NonceDisabled))
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	ft := &fakeTransport{resp: okResponse(`{}`)}
	client := New("test.bitpay.com", 443, WithTransport(ft), WithIdentity(ident))

	if _, err := client.Call(context.Background(), "ping", map[string]any{}); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(ft.lastReq.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if _, ok := body["nonce"]; ok {
		t.Fatal("disabled nonce strategy must omit the nonce field")
	}
}

func TestCallRemoteError(t *testing.T) {
	ft := &fakeTransport{resp: Response{StatusCode: 200, Body: []byte(`{"error":"invalid token"}`)}}
	client := New("test.bitpay.com", 443, WithTransport(ft))

	_, err := client.Call(context.Background(), "getInvoices", map[string]any{})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("got %v, want *RemoteError", err)
	}
	if remote.Message != "invalid token" {
		t.Fatalf("unexpected message: %q", remote.Message)
	}
}

func TestCallParseErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>bad gateway</html>"},
		{"empty envelope", "{}"},
	}
	for _, tc := range cases {
		ft := &fakeTransport{resp: Response{StatusCode: 200, Body: []byte(tc.body)}}
		client := New("test.bitpay.com", 443, WithTransport(ft))
		if _, err := client.Call(context.Background(), "getRates", map[string]any{}); !errors.Is(err, ErrParse) {
			t.Fatalf("%s: got %v, want ErrParse", tc.name, err)
		}
	}
}

func TestCallNetworkError(t *testing.T) {
	ft := &fakeTransport{err: errors.New("connection refused")}
	client := New("test.bitpay.com", 443, WithTransport(ft))
	if _, err := client.Call(context.Background(), "getRates", map[string]any{}); !errors.Is(err, ErrNetwork) {
		t.Fatalf("got %v, want ErrNetwork", err)
	}
}

func TestCallRequiresMethod(t *testing.T) {
	client := New("test.bitpay.com", 443, WithTransport(&fakeTransport{}))
	if _, err := client.Call(context.Background(), "", nil); !errors.Is(err, ErrMissingMethod) {
		t.Fatalf("got %v, want ErrMissingMethod", err)
	}
}
