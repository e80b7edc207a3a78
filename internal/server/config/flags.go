package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/flagx"
)

// parseFlags overlays Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-g string   gRPC health bind address (empty disables)
//	-l string   log level
//	-b string   store backend: file, postgres, s3
//	-f string   user store file (file backend)
//	-d string   PostgreSQL DSN (postgres backend)
//	-s string   token signing secret
//	-t int      token validity, hours
//	-x string   hash algorithm: bcrypt, argon2id
//	-k int      bcrypt cost
//
// Only the flags above are picked out of os.Args, so authctl subcommand
// flags can share the command line.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-l", "-b", "-f", "-d", "-s", "-t", "-x", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run the gRPC health endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "user store backend (file, postgres, s3)")
	fs.StringVar(&config.UserStorePath, "f", config.UserStorePath, "user store file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing secret")
	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Hours()), "token validity (in hours)")
	fs.StringVar(&config.HashAlgorithm, "x", config.HashAlgorithm, "password hash algorithm (bcrypt, argon2id)")
	fs.IntVar(&config.HashCost, "k", config.HashCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	// -t only wins when given explicitly; the hour conversion would otherwise
	// truncate sub-hour values coming from JSON or env.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Hour
		}
	})

	return nil
}
