package passwords

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

func checkBcryptCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// bcryptMaxInput is the number of password bytes bcrypt reads. Longer
// input is truncated the same way the stored bcrypt hashes were produced.
const bcryptMaxInput = 72

func bcryptInput(plaintext string) []byte {
	b := []byte(plaintext)
	if len(b) > bcryptMaxInput {
		b = b[:bcryptMaxInput]
	}
	return b
}

func hashBcrypt(plaintext string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword(bcryptInput(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

func verifyBcrypt(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), bcryptInput(plaintext)) == nil
}
