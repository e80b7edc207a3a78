// Package cli implements authctl, the operator command line over the user
// store: registering users, listing them, backfilling external identities
// and checking session tokens.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/auth"
	"github.com/dmitrijs2005/chatgate/internal/server/users"
)

// UserService is satisfied by *users.Service.
type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (*users.User, error)
	MergeExternal(ctx context.Context, id users.ExternalIdentity) (*users.User, bool, error)
	List(ctx context.Context) ([]*users.User, error)
}

// TokenVerifier is satisfied by *auth.TokenService.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

var ErrUsage = errors.New("usage error")

var commands = []string{"register", "list", "merge-external", "verify-token", "help"}

const usage = `Usage: authctl [config flags] <command> [args]

Commands:
  register                          add a local user (prompts for fields)
  list                              print all users as JSON lines
  merge-external -name N -email E   sign in an external identity
  verify-token TOKEN                print the claims of a session token
`

type App struct {
	users  UserService
	tokens TokenVerifier
	in     *bufio.Reader
	out    io.Writer
}

func NewApp(us UserService, tv TokenVerifier, in io.Reader, out io.Writer) *App {
	return &App{users: us, tokens: tv, in: bufio.NewReader(in), out: out}
}

// SplitCommand finds the command in a full argument list. Arguments before
// it are config flags and are left to the config loader.
func SplitCommand(args []string) (string, []string) {
	for i, a := range args {
		if slices.Contains(commands, a) {
			return a, args[i+1:]
		}
	}
	return "", nil
}

// Run executes one command.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx)
	case "list":
		return a.list(ctx)
	case "merge-external":
		return a.mergeExternal(ctx, args)
	case "verify-token":
		return a.verifyToken(args)
	case "help":
		_, err := fmt.Fprint(a.out, usage)
		return err
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) register(ctx context.Context) error {
	var in users.RegisterInput
	var err error

	for _, f := range []struct {
		prompt string
		dst    *string
	}{
		{"Name", &in.Name},
		{"Email", &in.Email},
		{"Mobile (10 digits)", &in.Mobile},
		{"Company", &in.CompanyName},
	} {
		if *f.dst, err = GetSimpleText(a.in, f.prompt, a.out); err != nil {
			return err
		}
	}

	pw, err := GetPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword("Confirm password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	in.Password, in.ConfirmPassword = string(pw), string(confirm)

	u, err := a.users.Register(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s (%s)\n", u.Email, u.ID)
	return nil
}

func (a *App) list(ctx context.Context) error {
	all, err := a.users.List(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	for _, u := range all {
		if err := enc.Encode(u.Public()); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) mergeExternal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("merge-external", flag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "display name from the identity provider")
	email := fs.String("email", "", "email from the identity provider")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	u, created, err := a.users.MergeExternal(ctx, users.ExternalIdentity{Name: *name, Email: *email})
	if err != nil {
		return err
	}

	state := "existing"
	if created {
		state = "created"
	}
	fmt.Fprintf(a.out, "%s %s (%s)\n", state, u.Email, u.ID)
	return nil
}

func (a *App) verifyToken(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: verify-token takes exactly one token", ErrUsage)
	}

	claims, err := a.tokens.Verify(args[0])
	if auth.IsInvalidToken(err) {
		fmt.Fprintln(a.out, common.ErrInvalidToken.Error())
		return err
	}
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(claims)
}
