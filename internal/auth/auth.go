package auth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// tokenCost is the bcrypt cost of admin tokens. They are verified on every
// admin request.
const tokenCost = 10

// HashToken generates a bcrypt hash of an admin API token.
func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), tokenCost)
	return string(bytes), err
}

// CheckTokenHash compares a plaintext token with a stored bcrypt hash.
// It returns true if the token matches the hash.
func CheckTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

// GenerateToken returns a random hex token of n bytes.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
