package link_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/SpatiumPortae/logportal/internal/link"
	"github.com/SpatiumPortae/logportal/protocol/mavlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkOverPipe(t *testing.T) {
	a, b := net.Pipe()
	gcs := link.New(link.NewStream(a))
	vehicle := link.New(link.NewStream(b), link.WithSystemID(1), link.WithComponentID(1))
	defer gcs.Close()
	defer vehicle.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan mavlink.Message, 4)
	go vehicle.Listen(ctx, func(msg mavlink.Message) { received <- msg })

	sent := []mavlink.Message{
		mavlink.LogRequestList{TargetSystem: 1, TargetComponent: 1, End: 0xFFFF},
		mavlink.LogRequestData{TargetSystem: 1, TargetComponent: 1, ID: 2, Ofs: 180, Count: 720},
	}
	for _, msg := range sent {
		require.NoError(t, gcs.Send(msg))
	}

	for _, want := range sent {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, 2, gcs.Stats().Sent)
	assert.Eventually(t, func() bool { return vehicle.Stats().Received == 2 }, time.Second, 10*time.Millisecond)
}

func TestListenStopsOnCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	l := link.New(link.NewStream(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- l.Listen(ctx, func(mavlink.Message) {}) }()

	cancel()
	// Unblock the pending read so the cancellation is observed.
	go b.Write([]byte{0x00})
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("listen did not return")
	}
}

func TestUDP(t *testing.T) {
	server, err := link.ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	t.Run("no peer yet", func(t *testing.T) {
		assert.ErrorIs(t, server.Write(context.Background(), []byte{1}), link.ErrNoPeer)
	})

	client, err := link.DialUDP(server.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.Write(ctx, []byte("ping")))
	b, err := server.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), b)

	require.NoError(t, server.Write(ctx, []byte("pong")))
	b, err = client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), b)
}

func TestParseAddress(t *testing.T) {
	valid := map[string]link.Address{
		"serial:/dev/ttyUSB0":        {Scheme: "serial", Target: "/dev/ttyUSB0"},
		"udpin::14550":               {Scheme: "udpin", Target: ":14550"},
		"udpout:127.0.0.1:14550":     {Scheme: "udpout", Target: "127.0.0.1:14550"},
		"udpout:[::1]:14550":         {Scheme: "udpout", Target: "[::1]:14550"},
		"udpout:vehicle.local:14555": {Scheme: "udpout", Target: "vehicle.local:14555"},
	}
	for addr, want := range valid {
		t.Run(addr, func(t *testing.T) {
			got, err := link.ParseAddress(addr)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, addr := range []string{"", "serial:", "tcp:127.0.0.1:5760", "udpin:14550", "udpout:127.0.0.1:99999"} {
		t.Run("invalid "+addr, func(t *testing.T) {
			assert.ErrorIs(t, link.ValidateAddress(addr), link.ErrInvalidAddress)
		})
	}
}
