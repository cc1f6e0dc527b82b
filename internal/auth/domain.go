package auth

import "time"

// APIToken is a long-lived bearer credential issued to a clinic actor.
// The secret is stored bcrypt-hashed; the plaintext is shown once at
// creation time.
type APIToken struct {
	ID         int64
	ActorID    string
	Name       string
	SecretHash string
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
