package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPDialAndReadTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	b := NewTCPBackend(TCPConfig{ReadTimeout: 50 * time.Millisecond})
	conn, err := b.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	// Silence maps to ErrReadTimeout, not a hard failure.
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, ErrReadTimeout)

	// Data flows once the peer writes.
	_, err = server.Write([]byte("ping"))
	require.NoError(t, err)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestTCPDialRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	b := NewTCPBackend(TCPConfig{})
	_, err = b.Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestTCPSetReadTimeout(t *testing.T) {
	c := &tcpConn{}
	require.NoError(t, c.SetReadTimeout(time.Second))
	assert.Equal(t, time.Second, c.readTimeout)
}
