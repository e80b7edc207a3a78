// Package passwords implements the credential hasher: salted, deliberately
// slow one-way hashes for user passwords.
//
// Two encodings are understood. bcrypt hashes ("$2a$", "$2b$", "$2y$") are
// what the original data files contain; argon2id hashes use the PHC string
// format ("$argon2id$v=19$m=...,t=...,p=...$salt$hash"). Verify accepts
// either regardless of which algorithm new hashes are produced with, so the
// algorithm can be switched without invalidating stored credentials.
package passwords

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm names accepted by New.
const (
	Bcrypt   = "bcrypt"
	Argon2id = "argon2id"
)

var ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")

// Hasher hashes new passwords with one algorithm and verifies any
// supported encoding.
type Hasher struct {
	algorithm string
	cost      int
	argon     argonParams
}

// New returns a Hasher for the given algorithm. cost is the bcrypt work
// factor and is ignored for argon2id.
func New(algorithm string, cost int) (*Hasher, error) {
	switch algorithm {
	case Bcrypt:
		if err := checkBcryptCost(cost); err != nil {
			return nil, err
		}
	case Argon2id:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	return &Hasher{algorithm: algorithm, cost: cost, argon: defaultArgonParams}, nil
}

// Algorithm reports the algorithm used for new hashes.
func (h *Hasher) Algorithm() string { return h.algorithm }

// Hash returns the encoded hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if h.algorithm == Argon2id {
		return hashArgon2id(plaintext, h.argon)
	}
	return hashBcrypt(plaintext, h.cost)
}

// Verify reports whether plaintext matches hashed. Malformed or empty
// hashes simply do not match.
func (h *Hasher) Verify(plaintext, hashed string) bool {
	switch {
	case hashed == "":
		return false
	case strings.HasPrefix(hashed, "$argon2id$"):
		return verifyArgon2id(plaintext, hashed)
	case strings.HasPrefix(hashed, "$2"):
		return verifyBcrypt(plaintext, hashed)
	default:
		return false
	}
}
