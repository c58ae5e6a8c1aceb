package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/errors"
)

func validConfig(t *testing.T) Config {
	return Config{
		DirectoryURL: "https://step-ca:9000/acme/acme/directory",
		Email:        "ops@metaquery.local",
		Domains:      []string{"metaquery.local"},
		StoragePath:  t.TempDir(),
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "tls-alpn-01", mutate: func(c *Config) { c.ChallengeType = ChallengeTLSALPN01 }},
		{name: "missing directory", mutate: func(c *Config) { c.DirectoryURL = "" }, errMsg: "directory_url is required"},
		{name: "missing email", mutate: func(c *Config) { c.Email = "" }, errMsg: "email is required"},
		{name: "missing domains", mutate: func(c *Config) { c.Domains = nil }, errMsg: "at least one domain is required"},
		{name: "dns-01 unsupported", mutate: func(c *Config) { c.ChallengeType = "dns-01" }, errMsg: "challenge_type must be"},
		{name: "missing storage", mutate: func(c *Config) { c.StoragePath = "" }, errMsg: "storage_path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*time.Hour, cfg.RenewBefore)
	assert.Equal(t, ChallengeHTTP01, cfg.ChallengeType)
}

func TestAccount_PersistsAcrossClients(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	first := &Client{config: cfg, logger: slog.Default()}
	require.NoError(t, first.loadOrCreateAccount())
	assert.FileExists(t, filepath.Join(cfg.StoragePath, accountFile))
	assert.FileExists(t, filepath.Join(cfg.StoragePath, accountKey))

	second := &Client{config: cfg, logger: slog.Default()}
	require.NoError(t, second.loadOrCreateAccount())

	assert.Equal(t, cfg.Email, second.account.GetEmail())
	assert.Nil(t, second.account.GetRegistration())
	firstKey := first.account.GetPrivateKey().(*ecdsa.PrivateKey)
	secondKey := second.account.GetPrivateKey().(*ecdsa.PrivateKey)
	assert.True(t, firstKey.Equal(secondKey), "the stored key is reused")
}

func TestAccount_CorruptFile(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StoragePath, accountFile), []byte("{"), 0o600))

	c := &Client{config: cfg, logger: slog.Default()}
	err := c.loadOrCreateAccount()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func writeCert(t *testing.T, dir string, notAfter time.Time) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "metaquery.local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, certFile),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, certKeyFile),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
}

func TestStoredCertificate(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	c := &Client{config: cfg, logger: slog.Default()}

	cert, leaf, err := c.StoredCertificate()
	require.NoError(t, err)
	assert.Nil(t, cert)
	assert.Nil(t, leaf)

	writeCert(t, cfg.StoragePath, time.Now().Add(72*time.Hour))
	cert, leaf, err = c.StoredCertificate()
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.Equal(t, "metaquery.local", leaf.Subject.CommonName)

	assert.False(t, c.NeedsRenewal(leaf, time.Now()))
	assert.True(t, c.NeedsRenewal(leaf, time.Now().Add(65*time.Hour)))

	fresh, renewed, err := c.RenewCertificateIfNeeded(t.Context())
	require.NoError(t, err)
	assert.False(t, renewed)
	assert.Equal(t, cert.Certificate, fresh.Certificate)
}
