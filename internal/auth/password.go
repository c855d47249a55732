package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MatchRoomPassword reports whether supplied matches the stored room
// secret. The surrounding application stores either the plain secret or
// a bcrypt hash of it; hashes are recognized by their "$2" prefix.
func MatchRoomPassword(stored, supplied string) bool {
	if stored == "" {
		return true
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

// HashRoomPassword generates a bcrypt hash for a room secret. Exposed for
// the surrounding application's share-management flow.
func HashRoomPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
