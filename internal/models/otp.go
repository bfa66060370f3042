package models

import "time"

// OTP is the one-time code currently issued for a scope.
// All three fields are nil when no code is active.
type OTP struct {
	Code        *string    `gorm:"column:code;size:6"`
	GeneratedAt *time.Time `gorm:"column:generated_at"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
}

// Active reports whether a code has been issued, regardless of expiry
func (o OTP) Active() bool {
	return o.Code != nil && o.ExpiresAt != nil
}

// Columns returns the update map that stores o under the given column prefix
func (o OTP) Columns(prefix string) map[string]interface{} {
	return map[string]interface{}{
		prefix + "code":         o.Code,
		prefix + "generated_at": o.GeneratedAt,
		prefix + "expires_at":   o.ExpiresAt,
	}
}

// Column prefixes of the embedded OTP structs
const (
	CheckInOTPPrefix = "checkin_otp_"
	VotingOTPPrefix  = "voting_otp_"
)
