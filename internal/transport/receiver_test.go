package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Charliesj0129/shijim/internal/config"
	"github.com/Charliesj0129/shijim/internal/logging"
)

// S5 — unicast loopback: bind 127.0.0.1:<port>, mode TESTING, no multicast
// join attempted; a datagram sent to loopback produces exactly one
// delivered frame.
func TestUnicastLoopbackDelivery(t *testing.T) {
	cfg := config.IngestorConfig{Bind: "127.0.0.1:0", Mode: config.ModeTesting}
	// The Receiver does not expose the port it bound, so the test needs a
	// concrete port to dial; pick one that is very unlikely to be in use
	// for this short-lived test socket.
	cfg.Bind = "127.0.0.1:58213"

	recv, err := New(cfg, logging.New("test"))
	require.NoError(t, err)
	defer recv.Close()

	received := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = recv.Run(ctx, func(frame []byte) {
			cp := append([]byte(nil), frame...)
			select {
			case received <- cp:
			default:
			}
		})
	}()

	conn, err := net.Dial("udp", cfg.Bind)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello-loopback"))
	require.NoError(t, err)

	select {
	case frame := <-received:
		require.Equal(t, "hello-loopback", string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loopback datagram delivery")
	}
}

func TestNewRejectsInvalidBindAddress(t *testing.T) {
	cfg := config.IngestorConfig{Bind: "not-an-address", Mode: config.ModeTesting}
	_, err := New(cfg, logging.New("test"))
	require.Error(t, err)
}
