// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. The `db:"..."` tags name the
// matching SQLite columns; the `json:"..."` tags are used by the metadata views.
package model

import "time"

// User represents a registered account.
//
// PasswordHash is the full bcrypt output (salt and cost embedded). It is
// tagged `json:"-"` so it can never leak through an encoder, and it is never
// written to logs.
type User struct {
	ID           int64     `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"` // unique across all users
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
