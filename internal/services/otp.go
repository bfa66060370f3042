package services

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"math/big"
	"time"

	"github.com/huangang/condovote/internal/models"
)

const (
	OTPLength        = 6
	DefaultOTPWindow = 4 * time.Minute
)

// OTPGenerator issues and checks the short-lived numeric codes that gate
// check-in (assembly scope) and voting (agenda item scope).
type OTPGenerator struct {
	window time.Duration
	rand   io.Reader
}

// NewOTPGenerator creates a generator whose codes live for window
func NewOTPGenerator(window time.Duration) *OTPGenerator {
	if window <= 0 {
		window = DefaultOTPWindow
	}
	return &OTPGenerator{window: window, rand: rand.Reader}
}

// Window returns how long a generated code stays valid
func (g *OTPGenerator) Window() time.Duration {
	return g.window
}

// Generate draws a fresh uniform 6-digit code valid from now until now+window
func (g *OTPGenerator) Generate(now time.Time) (models.OTP, error) {
	code := make([]byte, OTPLength)
	ten := big.NewInt(10)
	for i := range code {
		n, err := rand.Int(g.rand, ten)
		if err != nil {
			return models.OTP{}, err
		}
		code[i] = byte('0' + n.Int64())
	}

	s := string(code)
	generatedAt := now
	expiresAt := now.Add(g.window)
	return models.OTP{Code: &s, GeneratedAt: &generatedAt, ExpiresAt: &expiresAt}, nil
}

// Validate fails closed: a missing code, a code past its expiry or a
// mismatch are all rejected. The code is valid up to and including expiresAt.
func (g *OTPGenerator) Validate(otp models.OTP, submitted string, now time.Time) error {
	if !otp.Active() || submitted == "" {
		return ErrOtpInvalid
	}
	if now.After(*otp.ExpiresAt) {
		return ErrOtpExpired
	}
	if subtle.ConstantTimeCompare([]byte(*otp.Code), []byte(submitted)) != 1 {
		return ErrOtpInvalid
	}
	return nil
}
