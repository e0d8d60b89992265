package auth

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is the hashing cost used when the configured value is
// outside bcrypt's supported range.
const DefaultBcryptCost = bcrypt.DefaultCost

// HashPassword produces a salted one-way digest of the password. bcrypt
// embeds a fresh random salt, so the same plaintext hashes differently on
// every call.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword reports whether the password matches the stored digest.
// A malformed digest is never an error, just a mismatch.
func VerifyPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
