package kvstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/errors"
	"github.com/c360/metaquery/pkg/tlsutil"
)

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, 1, cfg.Replicas)

	cfg = Config{BucketPrefix: "bad.prefix"}
	assert.Error(t, cfg.Validate())

	cfg = Config{Replicas: 7}
	assert.Error(t, cfg.Validate())

	cfg = Config{Username: "u", Token: "t"}
	assert.Error(t, cfg.Validate())
}

func TestConfig_ClientOptions(t *testing.T) {
	cfg := Config{Username: "reader", Password: "pw"}
	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	cfg = Config{Token: "t", TLS: tlsutil.ClientConfig{Enabled: true}}
	opts, err = cfg.ClientOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	cfg = Config{TLS: tlsutil.ClientConfig{Enabled: true, CAFiles: []string{"/nonexistent/ca.pem"}}}
	_, err = cfg.ClientOptions()
	assert.Error(t, err)
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestEncodeKey(t *testing.T) {
	id := "c2hvcDo6Y2FydA==.1_cG9kLTE="
	key := EncodeKey(id)
	assert.NotContains(t, key, "=")
	assert.NotContains(t, key, "+")
	assert.NotContains(t, key, "/")
	assert.NotEqual(t, EncodeKey("a"), EncodeKey("b"))
}

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord([]byte(`{"id":"x","source":{"last_ping":202401011200,"name":"pod"}}`))
	require.NoError(t, err)
	assert.Equal(t, "x", rec.ID)
	assert.Equal(t, json.Number("202401011200"), rec.Source["last_ping"])

	rec, err = decodeRecord([]byte(`{"id":"y"}`))
	require.NoError(t, err)
	assert.NotNil(t, rec.Source)

	_, err = decodeRecord([]byte(`{"id":`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedResponse))
}

func TestStore_BucketName(t *testing.T) {
	s := &Store{cfg: Config{BucketPrefix: "mq_"}}
	assert.Equal(t, "mq_service_traffic", s.BucketName("service_traffic"))
	assert.Equal(t, "mq_a_b", s.BucketName("a.b"))
}
