package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, map[string]any{
		"http_addr":               "0.0.0.0:8080",
		"grpc_addr":               "",
		"store_backend":           "s3",
		"user_store_path":         "/var/lib/chatgate/data.txt",
		"database_dsn":            "postgres://db",
		"secret_key":              "my_secret_key",
		"token_issuer":            "issuer",
		"token_validity_duration": "1d",
		"hash_algorithm":          "argon2id",
		"hash_cost":               12,
		"s3_root_user":            "user",
		"s3_root_password":        "password",
		"s3_bucket":               "bucket",
		"s3_region":               "region",
		"s3_base_endpoint":        "base_endpoint",
		"s3_prefix":               "p/",
		"otlp_endpoint":           "http://collector:4318",
	})

	t.Run("loads every field", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))

		assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
		assert.Equal(t, "", cfg.GRPCAddr, "explicit empty string disables gRPC")
		assert.Equal(t, BackendS3, cfg.StoreBackend)
		assert.Equal(t, "/var/lib/chatgate/data.txt", cfg.UserStorePath)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "issuer", cfg.TokenIssuer)
		assert.Equal(t, 24*time.Hour, cfg.TokenValidityDuration)
		assert.Equal(t, HashArgon2id, cfg.HashAlgorithm)
		assert.Equal(t, 12, cfg.HashCost)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.Equal(t, "p/", cfg.S3Prefix)
		assert.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
	})

	t.Run("missing keys keep defaults", func(t *testing.T) {
		partial := writeTempJSON(t, map[string]any{"secret_key": "only-this"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))

		assert.Equal(t, "only-this", cfg.SecretKey)
		assert.Equal(t, ":3000", cfg.HTTPAddr)
		assert.Equal(t, 7*24*time.Hour, cfg.TokenValidityDuration)
	})

	t.Run("no config file, no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv("CONFIG", "")

		cfg := &Config{HTTPAddr: "defaults:1234"}
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, "defaults:1234", cfg.HTTPAddr)
	})

	t.Run("invalid JSON is an error", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Error(t, parseJson(&Config{}))
	})

	t.Run("missing file is an error", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(t.TempDir(), "nope.json")}
		require.Error(t, parseJson(&Config{}))
	})
}
