package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/auth"
	"github.com/dmitrijs2005/chatgate/internal/server/passwords"
	"github.com/dmitrijs2005/chatgate/internal/server/users"
)

type cliFixture struct {
	svc    *users.Service
	tokens *auth.TokenService
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	repo, err := users.NewFileRepository(filepath.Join(t.TempDir(), "data.txt"), logging.Nop())
	require.NoError(t, err)
	hasher, err := passwords.New(passwords.Bcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	tokens := auth.NewTokenService("cli-secret", "chatgate", time.Hour)
	return &cliFixture{svc: users.NewService(repo, hasher, tokens, logging.Nop()), tokens: tokens}
}

func (f *cliFixture) run(t *testing.T, stdin string, cmd string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewApp(f.svc, f.tokens, strings.NewReader(stdin), &out).Run(context.Background(), cmd, args)
	return out.String(), err
}

func stubPasswords(t *testing.T, pws ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	i := 0
	readPassword = func(int) ([]byte, error) {
		pw := pws[i%len(pws)]
		i++
		return []byte(pw), nil
	}
}

func TestSplitCommand(t *testing.T) {
	cmd, rest := SplitCommand([]string{"-f", "data.txt", "merge-external", "-name", "Bob", "-email", "bob@x.com"})
	assert.Equal(t, "merge-external", cmd)
	assert.Equal(t, []string{"-name", "Bob", "-email", "bob@x.com"}, rest)

	cmd, rest = SplitCommand([]string{"-b", "file"})
	assert.Empty(t, cmd)
	assert.Empty(t, rest)
}

func TestRegisterAndList(t *testing.T) {
	f := newCLIFixture(t)
	stubPasswords(t, "secret1", "secret1")

	out, err := f.run(t, "Ann\nann@x.com\n1234567890\nAcme\n", "register")
	require.NoError(t, err)
	assert.Contains(t, out, "registered ann@x.com")

	out, err = f.run(t, "", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)

	var u map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &u))
	assert.Equal(t, "ann@x.com", u["email"])
	assert.NotContains(t, u, "password")
}

func TestRegister_PasswordMismatch(t *testing.T) {
	f := newCLIFixture(t)
	stubPasswords(t, "secret1", "secret2")

	_, err := f.run(t, "Ann\nann@x.com\n1234567890\nAcme\n", "register")
	assert.ErrorIs(t, err, users.ErrPasswordMismatch)
}

func TestMergeExternal(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "", "merge-external", "-name", "Bob", "-email", "bob@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "created bob@x.com"), out)

	out, err = f.run(t, "", "merge-external", "-name", "Robert", "-email", "bob@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "existing bob@x.com"), out)

	_, err = f.run(t, "", "merge-external", "-name", "NoMail")
	assert.ErrorIs(t, err, users.ErrMissingEmail)

	_, err = f.run(t, "", "merge-external", "-bogus")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestVerifyToken(t *testing.T) {
	f := newCLIFixture(t)
	tok, err := f.tokens.Issue(auth.Identity{UserID: "u1", Email: "ann@x.com", Name: "Ann"})
	require.NoError(t, err)

	out, err := f.run(t, "", "verify-token", tok)
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	assert.Equal(t, "u1", claims["userId"])

	out, err = f.run(t, "", "verify-token", "garbage")
	assert.Error(t, err)
	assert.Equal(t, "invalid or expired token\n", out)

	_, err = f.run(t, "", "verify-token")
	assert.ErrorIs(t, err, ErrUsage)
}

type failingVerifier struct{ err error }

func (v failingVerifier) Verify(string) (*auth.Claims, error) { return nil, v.err }

func TestVerifyToken_OtherErrors(t *testing.T) {
	f := newCLIFixture(t)
	boom := errors.New("keyring unavailable")

	var out bytes.Buffer
	err := NewApp(f.svc, failingVerifier{err: boom}, strings.NewReader(""), &out).Run(context.Background(), "verify-token", []string{"tok"})
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, out.String(), "invalid")
}

func TestUnknownCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "", "")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, out, "Usage: authctl")

	out, err = f.run(t, "", "help")
	assert.NoError(t, err)
	assert.Contains(t, out, "verify-token TOKEN")
}
