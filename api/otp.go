package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GenerateOTP draws a 6-digit one-time code from the system CSPRNG.
func GenerateOTP() (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	v := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	return fmt.Sprintf("%06d", v%1000000), nil
}

// OTPStore keeps hashed one-time codes in Redis. Codes are single use: a
// successful or failed verification consumes them.
type OTPStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOTPStore(client *redis.Client, ttl time.Duration) *OTPStore {
	return &OTPStore{client: client, ttl: ttl}
}

func (s *OTPStore) key(email string) string {
	return "otp:" + email
}

// Put stores the code for email, replacing any outstanding one.
func (s *OTPStore) Put(ctx context.Context, email, code string) error {
	return s.client.Set(ctx, s.key(email), hashOTP(code), s.ttl).Err()
}

// Verify consumes the outstanding code for email and reports whether it
// matches. A missing or expired code verifies as false without error.
func (s *OTPStore) Verify(ctx context.Context, email, code string) (bool, error) {
	stored, err := s.client.GetDel(ctx, s.key(email)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(hashOTP(code))) == 1, nil
}

func hashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
