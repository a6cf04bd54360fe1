// Package auth resolves the caller identity attached to an upload batch.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrUnauthorized is returned when a token cannot be validated.
var ErrUnauthorized = errors.New("could not validate credentials")

// Identity is the verified caller.
type Identity struct {
	UID   string `json:"uid" toml:"uid" mapstructure:"uid"`
	Email string `json:"email,omitempty" toml:"email" mapstructure:"email"`
}

// Label is the caller label reported with a batch: the email when known, else the uid.
func (i Identity) Label() string {
	if i.Email != "" {
		return i.Email
	}
	return i.UID
}

// Provider verifies bearer tokens.
type Provider interface {
	Identify(ctx context.Context, token string) (Identity, error)
}

// StaticProvider accepts a fixed set of tokens.
type StaticProvider struct {
	tokens map[string]Identity
}

// NewStatic returns a provider for the given token table.
func NewStatic(tokens map[string]Identity) *StaticProvider {
	t := make(map[string]Identity, len(tokens))
	for k, v := range tokens {
		if k = strings.TrimSpace(k); k != "" {
			t[k] = v
		}
	}
	return &StaticProvider{tokens: t}
}

// Identify implements Provider. Every configured token is compared in constant time.
func (p *StaticProvider) Identify(_ context.Context, token string) (Identity, error) {
	var (
		found Identity
		ok    bool
	)
	for k, id := range p.tokens {
		if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			found, ok = id, true
		}
	}
	if !ok || token == "" {
		return Identity{}, ErrUnauthorized
	}
	if found.UID == "" {
		found.UID = "static"
	}
	return found, nil
}

// Anonymous accepts every request.
type Anonymous struct{}

// Identify implements Provider.
func (Anonymous) Identify(context.Context, string) (Identity, error) {
	return Identity{UID: "anonymous"}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
