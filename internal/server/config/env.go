package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/dmitrijs2005/chatgate/internal/timex"
)

// envConfig mirrors Config for environment parsing. Pointer fields stay nil
// when the variable is unset, so only variables that are present override.
type envConfig struct {
	HTTPAddr              *string `env:"HTTP_ADDR"`
	GRPCAddr              *string `env:"GRPC_ADDR"`
	LogLevel              *string `env:"LOG_LEVEL"`
	StoreBackend          *string `env:"STORE_BACKEND"`
	UserStorePath         *string `env:"USER_STORE_PATH"`
	DatabaseDSN           *string `env:"DATABASE_DSN"`
	SecretKey             *string `env:"JWT_SECRET"`
	TokenIssuer           *string `env:"TOKEN_ISSUER"`
	TokenValidityDuration *string `env:"TOKEN_TTL"`
	HashAlgorithm         *string `env:"HASH_ALGORITHM"`
	HashCost              *int    `env:"HASH_COST"`
	S3RootUser            *string `env:"S3_ROOT_USER"`
	S3RootPassword        *string `env:"S3_ROOT_PASSWORD"`
	S3Bucket              *string `env:"S3_BUCKET"`
	S3Region              *string `env:"S3_REGION"`
	S3BaseEndpoint        *string `env:"S3_BASE_ENDPOINT"`
	S3Prefix              *string `env:"S3_PREFIX"`
	OTLPEndpoint          *string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func parseEnv(config *Config) error {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString(&config.HTTPAddr, e.HTTPAddr)
	setString(&config.GRPCAddr, e.GRPCAddr)
	setString(&config.LogLevel, e.LogLevel)
	setString(&config.StoreBackend, e.StoreBackend)
	setString(&config.UserStorePath, e.UserStorePath)
	setString(&config.DatabaseDSN, e.DatabaseDSN)
	setString(&config.SecretKey, e.SecretKey)
	setString(&config.TokenIssuer, e.TokenIssuer)
	if e.TokenValidityDuration != nil {
		d, err := timex.ParseDuration(*e.TokenValidityDuration)
		if err != nil {
			return fmt.Errorf("parse env TOKEN_TTL: %w", err)
		}
		config.TokenValidityDuration = d
	}
	setString(&config.HashAlgorithm, e.HashAlgorithm)
	if e.HashCost != nil {
		config.HashCost = *e.HashCost
	}
	setString(&config.S3RootUser, e.S3RootUser)
	setString(&config.S3RootPassword, e.S3RootPassword)
	setString(&config.S3Bucket, e.S3Bucket)
	setString(&config.S3Region, e.S3Region)
	setString(&config.S3BaseEndpoint, e.S3BaseEndpoint)
	setString(&config.S3Prefix, e.S3Prefix)
	setString(&config.OTLPEndpoint, e.OTLPEndpoint)

	return nil
}
