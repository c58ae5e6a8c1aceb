package natsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/metaquery/errors"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{Reconnecting, "reconnecting"},
		{State(99), "unknown"},
		{State(-1), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))

	c, err := NewClient("nats://localhost:4222", WithTimeout(time.Second), WithName("metaquery"))
	require.NoError(t, err)
	assert.Equal(t, Disconnected, c.State())
	assert.False(t, c.Connected())

	_, err = c.OpenBucket(context.Background(), "instance_traffic")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNoConnection))
	assert.True(t, pkgerrors.IsTransient(err))
}

func TestNewClient_OptionErrors(t *testing.T) {
	tests := map[string][]ClientOption{
		"failing option":   {func(*options) error { return errors.New("boom") }},
		"zero timeout":     {WithTimeout(0)},
		"token after user": {WithCredentials("u", "p"), WithToken("t")},
		"user after token": {WithToken("t"), WithCredentials("u", "p")},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", opts...)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsInvalid(err))
		})
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1", WithTimeout(200*time.Millisecond), WithMaxReconnects(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	assert.Equal(t, Disconnected, c.State())
	assert.NoError(t, c.Close(context.Background()))
}

func TestClient_ConnectExpiredContext(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrConnectionTimeout))
	assert.Equal(t, Disconnected, c.State())
}

func TestClient_ConnectAfterClose(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNoConnection))
}

func TestIsKVNotFoundError(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.True(t, IsKVNotFoundError(errors.New("nats: key not found")))
	assert.False(t, IsKVNotFoundError(errors.New("timeout")))
}
