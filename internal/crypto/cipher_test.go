package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, KeySize))
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewFromBase64(testKey())
	require.NoError(t, err)
	return c
}

func TestNewFromBase64(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid key", testKey(), nil},
		{"missing key", "", ErrMissingKey},
		{"not base64", "%%%", ErrInvalidKey},
		{"short key", base64.StdEncoding.EncodeToString([]byte("short")), ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFromBase64(tt.key)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.NotNil(t, c)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	for _, p := range []string{"", "hi", "привет, мир", string(bytes.Repeat([]byte("x"), 4096))} {
		sealed, err := c.Encrypt(p)
		require.NoError(t, err)
		got, err := c.Decrypt(sealed)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	c := newTestCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	require.NotEqual(t, a.IV, b.IV)
	require.NotEqual(t, a.Ciphertext+a.AuthTag, b.Ciphertext+b.AuthTag)

	iv, err := base64.StdEncoding.DecodeString(a.IV)
	require.NoError(t, err)
	require.Len(t, iv, NonceSize)
}

func TestDecrypt_Tampered(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Encrypt("hello")
	require.NoError(t, err)

	flip := func(s string) string {
		b, _ := base64.StdEncoding.DecodeString(s)
		b[0] ^= 0xff
		return base64.StdEncoding.EncodeToString(b)
	}

	other, err := c.Encrypt("other")
	require.NoError(t, err)

	cases := map[string]Sealed{
		"tag flipped":        {Ciphertext: sealed.Ciphertext, IV: sealed.IV, AuthTag: flip(sealed.AuthTag)},
		"ciphertext flipped": {Ciphertext: flip(sealed.Ciphertext), IV: sealed.IV, AuthTag: sealed.AuthTag},
		"iv flipped":         {Ciphertext: sealed.Ciphertext, IV: flip(sealed.IV), AuthTag: sealed.AuthTag},
		"foreign tag":        {Ciphertext: sealed.Ciphertext, IV: sealed.IV, AuthTag: other.AuthTag},
		"tag not base64":     {Ciphertext: sealed.Ciphertext, IV: sealed.IV, AuthTag: "!!"},
		"short iv":           {Ciphertext: sealed.Ciphertext, IV: base64.StdEncoding.EncodeToString([]byte{1, 2}), AuthTag: sealed.AuthTag},
		"empty tag":          {Ciphertext: sealed.Ciphertext, IV: sealed.IV},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(s)
			require.True(t, errors.Is(err, ErrIntegrity), "got %v", err)
		})
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	other, err := New(bytes.Repeat([]byte{9}, KeySize))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	require.ErrorIs(t, err, ErrIntegrity)
}
