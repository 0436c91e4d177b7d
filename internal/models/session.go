package models

import "time"

// Session is the server-side record behind a session cookie.
type Session struct {
	SessionID  string    `json:"session_id" dynamodbav:"session_id"`
	Username   string    `json:"username" dynamodbav:"username"`
	Email      string    `json:"email" dynamodbav:"user_email"`
	Section    string    `json:"section" dynamodbav:"section"`
	Branch     string    `json:"branch" dynamodbav:"branch"`
	Mobile     string    `json:"mobile" dynamodbav:"mobile"`
	ProfilePic string    `json:"profile_pic" dynamodbav:"profile_pic"`
	Role       string    `json:"role" dynamodbav:"role"`
	CreatedAt  time.Time `json:"timestamp" dynamodbav:"created_at"`
	ExpiresAt  time.Time `json:"-" dynamodbav:"expires_at"`
}

// NewSession copies the profile fields of user into a session record.
func NewSession(id string, user *User, now time.Time, ttl time.Duration) Session {
	return Session{
		SessionID:  id,
		Username:   user.Username,
		Email:      user.Email,
		Section:    user.Section,
		Branch:     user.Branch,
		Mobile:     user.Mobile,
		ProfilePic: user.ProfilePic,
		Role:       user.RoleOrDefault(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}
