package lrthrome

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainFrame reads exactly one frame's worth of bytes off conn, growing
// the read buffer until Decode stops reporting errIncomplete.
func drainFrame(t *testing.T, conn net.Conn) Message {
	t.Helper()
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 256)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		msg, _, err := Decode(buf)
		if err == nil {
			return msg
		}
		if !IsIncomplete(err) {
			require.NoError(t, err)
		}
		n, rerr := conn.Read(tmp)
		require.NoError(t, rerr)
		buf = append(buf, tmp[:n]...)
	}
}

func TestPeerDeliversEnqueuedFrameBeforeShutdown(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	events := make(chan Event, 8)
	peer := NewPeer("test-addr", serverConn, events)

	msg := ResponseOkNotFound{IP: net.IPv4(1, 1, 1, 1)}
	peer.Enqueue(msg.Encode(nil))

	done := make(chan struct{})
	go func() {
		peer.Run()
		close(done)
	}()

	got := drainFrame(t, clientConn)
	assert.Equal(t, ResponseOkNotFound{IP: msg.IP.To4()}, got)

	peer.Shutdown()
	select {
	case ev := <-events:
		_, ok := ev.(EventPeerDisconnected)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}
	<-done
}

func TestPeerForwardsRequestFrameToDispatcher(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	events := make(chan Event, 8)
	peer := NewPeer("test-addr", serverConn, events)
	go peer.Run()

	req := Request{IP: net.IPv4(4, 4, 4, 4)}
	go func() {
		_, _ = clientConn.Write(req.Encode(nil))
	}()

	select {
	case ev := <-events:
		frame, ok := ev.(EventPeerFrame)
		require.True(t, ok)
		decoded, _, err := Decode(frame.Data)
		require.NoError(t, err)
		got, ok := decoded.(Request)
		require.True(t, ok)
		assert.True(t, got.IP.Equal(req.IP))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer frame event")
	}

	peer.Shutdown()
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}
}

func TestPeerShutdownIsIdempotent(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	events := make(chan Event, 8)
	peer := NewPeer("test-addr", serverConn, events)
	go peer.Run()

	assert.NotPanics(t, func() {
		peer.Shutdown()
		peer.Shutdown()
	})

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}
}
