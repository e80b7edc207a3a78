package passwords

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNew(t *testing.T) {
	_, err := New(Bcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	_, err = New(Argon2id, 0)
	require.NoError(t, err)

	_, err = New(Bcrypt, 3)
	require.Error(t, err)

	_, err = New("md5", 10)
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestHasher_RoundTrip(t *testing.T) {
	for _, algo := range []string{Bcrypt, Argon2id} {
		t.Run(algo, func(t *testing.T) {
			h, err := New(algo, bcrypt.MinCost)
			require.NoError(t, err)
			assert.Equal(t, algo, h.Algorithm())

			hashed, err := h.Hash("secret1")
			require.NoError(t, err)
			assert.NotEqual(t, "secret1", hashed)
			assert.NotContains(t, hashed, "secret1")

			assert.True(t, h.Verify("secret1", hashed))
			assert.False(t, h.Verify("wrong", hashed))
			assert.False(t, h.Verify("", hashed))
		})
	}
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	for _, algo := range []string{Bcrypt, Argon2id} {
		t.Run(algo, func(t *testing.T) {
			h, err := New(algo, bcrypt.MinCost)
			require.NoError(t, err)

			a, err := h.Hash("secret1")
			require.NoError(t, err)
			b, err := h.Hash("secret1")
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestHasher_LongPasswords(t *testing.T) {
	for _, algo := range []string{Bcrypt, Argon2id} {
		t.Run(algo, func(t *testing.T) {
			h, err := New(algo, bcrypt.MinCost)
			require.NoError(t, err)

			long := strings.Repeat("a", 80)
			hashed, err := h.Hash(long)
			require.NoError(t, err)
			assert.True(t, h.Verify(long, hashed))
			assert.False(t, h.Verify("aaaaaa", hashed))
		})
	}
}

func TestHasher_BcryptReadsFirst72Bytes(t *testing.T) {
	h, err := New(Bcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	prefix := strings.Repeat("p", 72)
	hashed, err := h.Hash(prefix + "-tail-one")
	require.NoError(t, err)
	assert.True(t, h.Verify(prefix+"-tail-two", hashed))

	// a 72-byte hash produced without truncation still verifies
	legacy, err := bcrypt.GenerateFromPassword([]byte(prefix), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, h.Verify(prefix+"xyz", string(legacy)))
}

func TestHasher_BcryptCostIsApplied(t *testing.T) {
	h, err := New(Bcrypt, 5)
	require.NoError(t, err)

	hashed, err := h.Hash("secret1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestHasher_VerifiesAcrossAlgorithms(t *testing.T) {
	bc, err := New(Bcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	ar, err := New(Argon2id, 0)
	require.NoError(t, err)

	fromBcrypt, err := bc.Hash("secret1")
	require.NoError(t, err)
	fromArgon, err := ar.Hash("secret1")
	require.NoError(t, err)

	assert.True(t, ar.Verify("secret1", fromBcrypt))
	assert.True(t, bc.Verify("secret1", fromArgon))
}

func TestHasher_MalformedHashesNeverMatch(t *testing.T) {
	h, err := New(Bcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	good, err := New(Argon2id, 0)
	require.NoError(t, err)
	argonHash, err := good.Hash("secret1")
	require.NoError(t, err)
	parts := strings.Split(argonHash, "$")

	cases := map[string]string{
		"empty":             "",
		"plaintext":         "secret1",
		"truncated bcrypt":  "$2a$10$abc",
		"unknown scheme":    "$md5$whatever",
		"argon bad version": strings.Join([]string{"", parts[1], "v=1", parts[3], parts[4], parts[5]}, "$"),
		"argon bad params":  strings.Join([]string{"", parts[1], parts[2], "m=x", parts[4], parts[5]}, "$"),
		"argon zero time":   strings.Join([]string{"", parts[1], parts[2], "m=65536,t=0,p=4", parts[4], parts[5]}, "$"),
		"argon bad salt":    strings.Join([]string{"", parts[1], parts[2], parts[3], "!!", parts[5]}, "$"),
		"argon empty key":   strings.Join([]string{"", parts[1], parts[2], parts[3], parts[4], ""}, "$"),
		"argon short":       "$argon2id$v=19",
	}
	for name, hashed := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, h.Verify("secret1", hashed))
			})
		})
	}
}
