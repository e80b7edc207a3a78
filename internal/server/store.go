package server

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/auth"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/migrations"
	"github.com/dmitrijs2005/chatgate/internal/server/passwords"
	"github.com/dmitrijs2005/chatgate/internal/server/users"
)

// Core is the user service with everything it depends on, shared by the
// server and authctl.
type Core struct {
	Users  *users.Service
	Tokens *auth.TokenService
	close  func() error
}

func (c *Core) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// NewCore opens the configured user store and builds the services on top.
func NewCore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Core, error) {
	repo, closeFn, err := OpenRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	hasher, err := passwords.New(cfg.HashAlgorithm, cfg.HashCost)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	tokens := auth.NewTokenService(cfg.SecretKey, cfg.TokenIssuer, cfg.TokenValidityDuration)
	svc := users.NewService(repo, hasher, tokens, logger.With("module", "users"))
	logger.Info(ctx, "auth core ready",
		"backend", cfg.StoreBackend,
		"hash_algorithm", hasher.Algorithm(),
		"token_validity", tokens.Validity().String(),
	)

	return &Core{Users: svc, Tokens: tokens, close: closeFn}, nil
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// OpenRepository returns the user store selected by cfg.StoreBackend and a
// function releasing its resources.
func OpenRepository(ctx context.Context, cfg *config.Config, logger logging.Logger) (users.Repository, func() error, error) {
	nop := func() error { return nil }
	log := logger.With("module", "store", "backend", cfg.StoreBackend)

	switch cfg.StoreBackend {
	case config.BackendFile:
		repo, err := users.NewFileRepository(cfg.UserStorePath, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "using file user store", "path", repo.Path())
		return repo, nop, nil

	case config.BackendPostgres:
		db, err := sqlOpen("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db migrations: %w", err)
		}
		log.Info(ctx, "using postgres user store")
		return users.NewPostgresRepository(db), db.Close, nil

	case config.BackendS3:
		client, err := users.NewS3Client(ctx, cfg.S3Region, cfg.S3BaseEndpoint, cfg.S3RootUser, cfg.S3RootPassword)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "using s3 user store", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return users.NewS3Repository(client, cfg.S3Bucket, cfg.S3Prefix, log), nop, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
