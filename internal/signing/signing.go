// Package signing issues and checks short-lived HMAC tokens. The identity
// service uses them as OAuth state values.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrSignature = errors.New("invalid token signature")
	ErrExpired   = errors.New("token expired")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for value and expiry.
func (s *Signer) Sign(value string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", value, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(value, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(s.Sign(value, exp)), []byte(signature))
}

// Issue returns value.expiry.signature, valid for ttl. value must not
// contain a dot.
func (s *Signer) Issue(value string, ttl time.Duration) string {
	exp := s.now().Add(ttl).Unix()
	return fmt.Sprintf("%s.%d.%s", value, exp, s.Sign(value, exp))
}

// Open checks a token made by Issue and returns its value.
func (s *Signer) Open(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", ErrMalformed
	}
	if !s.Validate(parts[0], parts[1], parts[2]) {
		return "", ErrSignature
	}
	exp, _ := strconv.ParseInt(parts[1], 10, 64)
	if s.now().Unix() > exp {
		return "", ErrExpired
	}
	return parts[0], nil
}
