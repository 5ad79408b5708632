package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"paylink/go-client/internal/credstore"
	"paylink/go-client/internal/identity"
	"paylink/go-client/pkg/models"
)

// createTokenResult is one element of the createToken response array.
type createTokenResult struct {
	Token             string `json:"token"`
	Facade            string `json:"facade"`
	Label             string `json:"label"`
	Resource          string `json:"resource"`
	PairingCode       string `json:"pairingCode"`
	PairingExpiration int64  `json:"pairingExpiration"`
}

// Pair requests an inactive token for the identity's fingerprint on the
// given facade and saves it to the store. The call itself is public and
// unsigned; the token stays unapproved until the remote side approves the
// pairing code out of band.
func Pair(ctx context.Context, client *Client, store *credstore.Store, ident *identity.Identity, facade, label string) (models.Token, error) {
	data, err := client.Call(ctx, "createToken", map[string]any{
		"id":     ident.ID(),
		"facade": facade,
		"label":  label,
	})
	if err != nil {
		return models.Token{}, err
	}

	var results []createTokenResult
	if err := json.Unmarshal(data, &results); err != nil || len(results) == 0 {
		return models.Token{}, ErrParse
	}
	granted := results[0]

	token := models.Token{
		Host:              client.Host(),
		Facade:            granted.Facade,
		Token:             granted.Token,
		Label:             granted.Label,
		Resource:          granted.Resource,
		PairingCode:       granted.PairingCode,
		PairingExpiration: granted.PairingExpiration,
		Identity:          ident.ID(),
	}
	return store.SaveToken(token)
}

// ApprovalURL is where a human approves a pairing code.
func ApprovalURL(host string, port int, pairingCode string) string {
	origin := "https://" + host
	if port != 443 {
		origin = fmt.Sprintf("https://%s:%d", host, port)
	}
	return origin + "/api-access-request?pairingCode=" + pairingCode
}
