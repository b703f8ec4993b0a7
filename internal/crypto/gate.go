// Package crypto provides the admin authorization gate and wallet signature
// verification.
package crypto

import (
	"context"
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// AdminGate decides whether a credential may trigger privileged ledger
// operations such as payout distribution.
type AdminGate interface {
	Authorize(ctx context.Context, credential string) bool
}

// AdminGateFunc adapts a function to AdminGate.
type AdminGateFunc func(ctx context.Context, credential string) bool

// Authorize implements AdminGate.
func (f AdminGateFunc) Authorize(ctx context.Context, credential string) bool {
	return f(ctx, credential)
}

// SecretGate compares the credential against a shared secret in constant
// time. An empty secret authorizes nobody.
type SecretGate struct {
	secret []byte
}

// NewSecretGate creates a SecretGate.
func NewSecretGate(secret string) *SecretGate {
	return &SecretGate{secret: []byte(secret)}
}

// Authorize implements AdminGate.
func (g *SecretGate) Authorize(_ context.Context, credential string) bool {
	if len(g.secret) == 0 || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare(g.secret, []byte(credential)) == 1
}

// BcryptGate checks the credential against a bcrypt hash so the plain
// secret never has to live in configuration.
type BcryptGate struct {
	hash []byte
}

// NewBcryptGate creates a BcryptGate after checking that hash is a valid
// bcrypt hash.
func NewBcryptGate(hash string) (*BcryptGate, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &BcryptGate{hash: []byte(hash)}, nil
}

// Authorize implements AdminGate.
func (g *BcryptGate) Authorize(_ context.Context, credential string) bool {
	if credential == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(credential)) == nil
}

// NewAdminGate picks a BcryptGate when hash is set and a SecretGate otherwise.
func NewAdminGate(secret, hash string) (AdminGate, error) {
	if hash != "" {
		return NewBcryptGate(hash)
	}
	return NewSecretGate(secret), nil
}
