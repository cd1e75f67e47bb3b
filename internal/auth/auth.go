package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Roles a user account can hold.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an authenticated user.
type User struct {
	ID     string
	Email  string
	Name   string
	Role   string
	PlanID string
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SessionLookup is the interface for resolving session tokens to users.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*User, error)
}

// Token holds the hashed form of an opaque token and a short prefix for
// identification.
type Token struct {
	Hash   string
	Prefix string
}

// GenerateToken creates an opaque token made of prefix followed by 32
// URL-safe random characters. It returns the Token (hash and prefix) and the
// full plaintext.
func GenerateToken(prefix string) (Token, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return Token{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	plaintext := prefix + base64.RawURLEncoding.EncodeToString(b)
	n := len(prefix) + 8
	if n > len(plaintext) {
		n = len(plaintext)
	}
	return Token{Hash: HashToken(plaintext), Prefix: plaintext[:n]}, plaintext, nil
}

// HashToken returns the hex-encoded SHA-256 hash of the given plaintext.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
