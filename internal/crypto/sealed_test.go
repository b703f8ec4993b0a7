package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	blob, err := SealSecret("admin-secret", "pw")
	require.NoError(t, err)

	got, err := OpenSecret(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, "admin-secret", got)

	_, err = OpenSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestSealSecret_RejectsEmpty(t *testing.T) {
	_, err := SealSecret("", "pw")
	assert.Error(t, err)
	_, err = SealSecret("s", "")
	assert.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "admin.sealed")
	blob, err := SealSecret("from-file", "pw")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := ResolveSecret(SecretSource{Raw: " raw ", SealedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	got, err = ResolveSecret(SecretSource{SealedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = ResolveSecret(SecretSource{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ResolveSecret(SecretSource{SealedPath: filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
