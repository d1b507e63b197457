package lrthrome

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerAnswersOverRealSocket(t *testing.T) {
	// Run's initial temper rebuilds the tree from the registry alone, so
	// the prefix is served by a source rather than inserted directly.
	reg := NewSourceRegistry()
	reg.Register(&fakeFetcher{name: "test", hasUpdate: true, cidrs: []CIDR{
		{IP: net.IPv4(203, 0, 113, 0), Length: 24},
	}})
	srv, err := NewServer(ServerOptions{
		BindAddress: "127.0.0.1:0",
		RateLimit:   100,
		Banner:      "lrthrome",
	}, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	msg := drainFrame(t, conn)
	est, ok := msg.(Established)
	require.True(t, ok)
	assert.Equal(t, "lrthrome", est.Banner)
	assert.Equal(t, uint32(1), est.TreeSize)

	req := Request{IP: net.IPv4(203, 0, 113, 7)}
	_, err = conn.Write(req.Encode(nil))
	require.NoError(t, err)

	resp := drainFrame(t, conn)
	found, ok := resp.(ResponseOkFound)
	require.True(t, ok)
	assert.Equal(t, uint32(24), found.MaskLen)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}

func TestRatePerSecondConvertsBurstWindow(t *testing.T) {
	assert.InDelta(t, 2.0, ratePerSecond(10), 0.001)
	assert.InDelta(t, 0.0, ratePerSecond(0), 0.001)
}
