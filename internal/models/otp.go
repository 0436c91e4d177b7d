package models

import "time"

// OTPRecord is the active password-reset passcode for one account identifier.
type OTPRecord struct {
	Code      string    `json:"code" dynamodbav:"Code"`
	Used      bool      `json:"used" dynamodbav:"Used"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"ExpiresAt"`
}

// IsExpired reports whether the record is past its expiry at now.
func (r *OTPRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
