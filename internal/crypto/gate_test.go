package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSecretGate(t *testing.T) {
	ctx := context.Background()
	g := NewSecretGate("s3cret")

	assert.True(t, g.Authorize(ctx, "s3cret"))
	assert.False(t, g.Authorize(ctx, "s3cre"))
	assert.False(t, g.Authorize(ctx, ""))
}

func TestSecretGate_EmptySecretDeniesAll(t *testing.T) {
	g := NewSecretGate("")
	assert.False(t, g.Authorize(context.Background(), ""))
	assert.False(t, g.Authorize(context.Background(), "anything"))
}

func TestBcryptGate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	g, err := NewBcryptGate(string(hash))
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, g.Authorize(ctx, "s3cret"))
	assert.False(t, g.Authorize(ctx, "wrong"))
	assert.False(t, g.Authorize(ctx, ""))
}

func TestNewAdminGate(t *testing.T) {
	_, err := NewAdminGate("", "not-a-hash")
	assert.Error(t, err)

	g, err := NewAdminGate("plain", "")
	require.NoError(t, err)
	assert.IsType(t, &SecretGate{}, g)
	assert.True(t, g.Authorize(context.Background(), "plain"))
}

func TestAdminGateFunc(t *testing.T) {
	var seen string
	g := AdminGateFunc(func(_ context.Context, c string) bool {
		seen = c
		return true
	})
	assert.True(t, g.Authorize(context.Background(), "x"))
	assert.Equal(t, "x", seen)
}
