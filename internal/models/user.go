package models

import (
	"time"
)

const (
	RoleStudent = "student"
	RoleCR      = "cr"
)

type User struct {
	Username   string    `json:"username" dynamodbav:"username"`
	Email      string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Password   string    `json:"-" dynamodbav:"password,omitempty"`
	Role       string    `json:"role,omitempty" dynamodbav:"role,omitempty"`
	Section    string    `json:"section,omitempty" dynamodbav:"section,omitempty"`
	Branch     string    `json:"branch,omitempty" dynamodbav:"branch,omitempty"`
	Mobile     string    `json:"mobile,omitempty" dynamodbav:"mobile,omitempty"`
	ProfilePic string    `json:"profile_pic,omitempty" dynamodbav:"profile_pic,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty" dynamodbav:"updated_at,omitempty"`
}

func (u *User) GetPK() string {
	return "USER#" + u.Username
}

func (u *User) GetSK() string {
	return "METADATA"
}

// RoleOrDefault returns the user's role, treating an empty role as a student.
func (u *User) RoleOrDefault() string {
	if u.Role == "" {
		return RoleStudent
	}
	return u.Role
}

// ProfileUpdate lists the account fields a user may change from the
// settings page. Empty fields are left as stored.
type ProfileUpdate struct {
	Email        string
	Mobile       string
	PasswordHash string
}
