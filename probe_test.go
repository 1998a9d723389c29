package ollama

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLocal(t *testing.T) (net.Listener, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestIsReachable_Listening(t *testing.T) {
	_, port := listenLocal(t)

	ok, err := IsReachable("127.0.0.1", port, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsReachable_ClosedPort(t *testing.T) {
	ln, port := listenLocal(t)
	require.NoError(t, ln.Close())

	ok, err := IsReachable("127.0.0.1", port, 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsReachable_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		host  string
		port  int
		field string
	}{
		{"port above range", "localhost", 70000, "port"},
		{"negative port", "localhost", -1, "port"},
		{"empty host", "", 11434, "host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := IsReachable(tt.host, tt.port, time.Second)
			assert.False(t, ok)

			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestIsReachableContext_Cancelled(t *testing.T) {
	_, port := listenLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := IsReachableContext(ctx, "127.0.0.1", port, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsReachable_DefaultTimeout(t *testing.T) {
	_, port := listenLocal(t)

	ok, err := IsReachable("127.0.0.1", port, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}
