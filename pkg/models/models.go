package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// IdentityRecord is the persisted form of a client identity. Exactly one of
// PrivateKey or PrivateKeyEncrypted is set: plaintext storage is the
// explicit weaker mode used when no passphrase was supplied at save time.
type IdentityRecord struct {
	ID                  string `json:"id"`
	Label               string `json:"label"`
	PublicKey           string `json:"publicKey"`
	PrivateKey          string `json:"privateKey,omitempty"`
	PrivateKeyEncrypted []byte `json:"privateKeyEncrypted,omitempty"`
	NonceStrategy       string `json:"nonceStrategy,omitempty"`
	Nonce               int64  `json:"nonce"`
	DateCreated         int64  `json:"dateCreated"`
}

// Token grants a capability scope ("facade") on one API host. Resource
// narrows the grant to a single remote object; Identity is a lookup key into
// the credential store, not ownership of the identity record.
type Token struct {
	Host              string `json:"host"`
	Facade            string `json:"facade"`
	Token             string `json:"token"`
	Label             string `json:"label,omitempty"`
	Resource          string `json:"resource,omitempty"`
	PairingCode       string `json:"pairingCode,omitempty"`
	PairingExpiration int64  `json:"pairingExpiration,omitempty"`
	Identity          string `json:"identity,omitempty"`
}

// Invoice statuses as reported by the API.
const (
	InvoiceStatusNew       = "new"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusConfirmed = "confirmed"
	InvoiceStatusComplete  = "complete"
	InvoiceStatusExpired   = "expired"
)

// Invoice exception statuses.
const (
	ExceptionNone        = ExceptionStatus("")
	ExceptionPaidPartial = ExceptionStatus("paidPartial")
	ExceptionPaidOver    = ExceptionStatus("paidOver")
)

// ExceptionStatus tolerates the API encoding "no exception" as boolean false
// instead of an empty string.
type ExceptionStatus string

func (s *ExceptionStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*s = ExceptionNone
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ExceptionStatus(str)
	return nil
}

func (s ExceptionStatus) MarshalJSON() ([]byte, error) {
	if s == ExceptionNone {
		return []byte("false"), nil
	}
	return json.Marshal(string(s))
}

// Invoice mirrors the invoice resource returned by createInvoice/getInvoice
// and carried by statechange push updates. Times are epoch milliseconds.
type Invoice struct {
	ID              string            `json:"id"`
	URL             string            `json:"url,omitempty"`
	Status          string            `json:"status"`
	ExceptionStatus ExceptionStatus   `json:"exceptionStatus,omitempty"`
	Price           float64           `json:"price"`
	Currency        string            `json:"currency"`
	BTCPrice        string            `json:"btcPrice,omitempty"`
	BTCPaid         string            `json:"btcPaid,omitempty"`
	BTCDue          string            `json:"btcDue,omitempty"`
	Rate            float64           `json:"rate,omitempty"`
	PaymentURLs     map[string]string `json:"paymentUrls,omitempty"`
	InvoiceTime     int64             `json:"invoiceTime"`
	ExpirationTime  int64             `json:"expirationTime"`
	CurrentTime     int64             `json:"currentTime,omitempty"`
	Token           string            `json:"token,omitempty"`
}

// PaidFull reports whether the invoice reached a fully paid state with no
// payment exception. Once true no further transition is applied.
func (inv Invoice) PaidFull() bool {
	switch inv.Status {
	case InvoiceStatusPaid, InvoiceStatusConfirmed, InvoiceStatusComplete:
		return inv.ExceptionStatus == ExceptionNone
	}
	return false
}

// Settled reports a fully confirmed terminal payment. Unlike PaidFull it
// excludes "paid", which still awaits confirmation.
func (inv Invoice) Settled() bool {
	switch inv.Status {
	case InvoiceStatusConfirmed, InvoiceStatusComplete:
		return inv.ExceptionStatus == ExceptionNone
	}
	return false
}

// AcceptingPayment reports whether the invoice can still receive funds:
// an unexpired invoice with a remaining amount due. A partially paid
// invoice keeps accepting until the balance clears or it expires.
func (inv Invoice) AcceptingPayment() bool {
	if inv.Expired() {
		return false
	}
	due, err := strconv.ParseFloat(inv.BTCDue, 64)
	return err == nil && due > 0
}

// Expired reports whether the invoice expired before full payment.
func (inv Invoice) Expired() bool {
	return inv.Status == InvoiceStatusExpired
}

// PaidPartial reports a partial payment exception.
func (inv Invoice) PaidPartial() bool {
	return inv.ExceptionStatus == ExceptionPaidPartial
}

// PaidOver reports an overpayment exception.
func (inv Invoice) PaidOver() bool {
	return inv.ExceptionStatus == ExceptionPaidOver
}
