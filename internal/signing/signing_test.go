package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerValidate(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	sig := s.Sign("github", 1700000000)
	require.NotEmpty(t, sig)

	assert.True(t, s.Validate("github", "1700000000", sig))
	assert.False(t, s.Validate("google", "1700000000", sig))
	assert.False(t, s.Validate("github", "42", sig))
	assert.False(t, s.Validate("github", "soon", sig))
	assert.False(t, NewSigner([]byte("other")).Validate("github", "1700000000", sig))
}

func TestIssueOpen(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return now }

	token := s.Issue("github", 10*time.Minute)
	value, err := s.Open(token)
	require.NoError(t, err)
	assert.Equal(t, "github", value)

	now = now.Add(11 * time.Minute)
	_, err = s.Open(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestOpenRejectsTampering(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	token := s.Issue("github", time.Minute)
	last := "0"
	if token[len(token)-1] == '0' {
		last = "1"
	}

	tests := map[string]string{
		"empty":          "",
		"two parts":      "github.123",
		"missing value":  ".123.abc",
		"swapped value":  "google" + token[len("github"):],
		"bad signature":  token[:len(token)-1] + last,
		"extra segments": token + ".x",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open(tok)
			require.Error(t, err)
		})
	}
}
