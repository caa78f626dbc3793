package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token binding a submission to one of its file references.
func (s *SignedURLSigner) Generate(submissionID, ref string) (string, time.Time, error) {
	if submissionID == "" || ref == "" {
		return "", time.Time{}, fmt.Errorf("submissionID and ref required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(submissionID, ts, encodedRef)
	token := strings.Join([]string{submissionID, ts, encodedRef, signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded metadata.
func (s *SignedURLSigner) Parse(token string) (submissionID, ref string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	submissionID, ts, encodedRef, signature := parts[0], parts[1], parts[2], parts[3]

	rawRef, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode ref: %w", err)
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)

	expected := s.sign(submissionID, ts, encodedRef)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return submissionID, string(rawRef), expiresAt, nil
}

func (s *SignedURLSigner) sign(submissionID, ts, encodedRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(submissionID + "|" + ts + "|" + encodedRef))
	return hex.EncodeToString(mac.Sum(nil))
}
