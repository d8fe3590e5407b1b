package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(randomKey(t))
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newSealer(t)

	tests := []struct {
		name    string
		label   []byte
		value   []byte
		wantErr error
	}{
		{name: "short text", value: []byte("Dishes")},
		{name: "with label", label: []byte("mutations/1"), value: []byte(`{"title":"Dishes"}`)},
		{name: "empty value", value: []byte{}, wantErr: ErrEmptyValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal(tt.label, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotContains(t, string(sealed), string(tt.value))

			opened, err := s.Open(tt.label, sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.value, opened)
		})
	}
}

func TestSealer_RandomNonce(t *testing.T) {
	s := newSealer(t)
	a, err := s.Seal(nil, []byte("same"))
	require.NoError(t, err)
	b, err := s.Seal(nil, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_OpenFailures(t *testing.T) {
	s := newSealer(t)
	sealed, err := s.Seal([]byte("entities/T1"), []byte("secret"))
	require.NoError(t, err)

	_, err = newSealer(t).Open([]byte("entities/T1"), sealed)
	assert.ErrorContains(t, err, "authentication failed")

	_, err = s.Open([]byte("entities/T2"), sealed)
	assert.ErrorContains(t, err, "authentication failed", "record moved to another key must not open")

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = s.Open([]byte("entities/T1"), tampered)
	assert.Error(t, err)

	_, err = s.Open(nil, []byte("short"))
	assert.ErrorIs(t, err, ErrShortValue)
}

func TestNewSealer_KeySize(t *testing.T) {
	_, err := NewSealer(make([]byte, 16))
	assert.ErrorContains(t, err, "must be 32 bytes")
}

func TestDeriveKey(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1, err := DeriveKey("fridge-magnet-42", "devA", salt)
	require.NoError(t, err)
	assert.Len(t, k1, KeySize)

	k2, err := DeriveKey("fridge-magnet-42", "devA", salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "derivation is deterministic")

	k3, err := DeriveKey("fridge-magnet-42", "devB", salt)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	_, err = DeriveKey("", "devA", salt)
	assert.ErrorContains(t, err, "passphrase cannot be empty")
	_, err = DeriveKey("x", "", salt)
	assert.ErrorContains(t, err, "device id cannot be empty")
	_, err = DeriveKey("x", "devA", salt[:8])
	assert.ErrorContains(t, err, "salt must be")
}

func TestKeyCheck(t *testing.T) {
	key := randomKey(t)
	check, err := KeyCheck(key)
	require.NoError(t, err)

	assert.NoError(t, VerifyKey(key, check))
	assert.ErrorContains(t, VerifyKey(randomKey(t), check), "invalid passphrase")
	assert.Error(t, VerifyKey(key, ""))

	_, err = KeyCheck(nil)
	assert.Error(t, err)
}

func TestKDFParams_Derive(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	cheap := KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}
	k1, err := cheap.Derive("fridge-magnet-42", "devA", salt)
	require.NoError(t, err)
	k2, err := DeriveKey("fridge-magnet-42", "devA", salt)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2, "cost parameters change the key")

	// Граница между фразой и устройством не должна сдвигаться
	k3, err := cheap.Derive("fridge-magnet-4", "2devA", salt)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}
