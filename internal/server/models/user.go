package models

import "time"

// User is a registered account. Username and email are unique; the password
// is stored only as a bcrypt digest.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
