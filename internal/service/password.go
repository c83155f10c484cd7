package service

import "golang.org/x/crypto/bcrypt"

// VerifyPassword compares a submitted secret against a stored bcrypt hash.
// bcrypt embeds the per-credential salt in the hash and compares in
// constant time. Fails closed: any malformed hash yields false, never an
// error the caller could mishandle.
func VerifyPassword(plaintext, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// HashPassword derives a salted bcrypt hash with the configured work
// factor. Costs below bcrypt's minimum fall back to the library default.
func HashPassword(plaintext string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
