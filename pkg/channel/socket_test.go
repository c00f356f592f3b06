package channel

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstrument answers each received line with the mapped response.
func fakeInstrument(t *testing.T, responses map[string]string) (addr string, received <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 32)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			lines <- line
			if resp, ok := responses[line]; ok {
				if _, err := conn.Write([]byte(resp + "\n")); err != nil {
					return
				}
			}
		}
	}()

	return ln.Addr().String(), lines
}

func TestSocketChannel(t *testing.T) {
	ctx := context.Background()
	addr, received := fakeInstrument(t, map[string]string{
		"*IDN?": "ACME,X1,42,1.0",
		"*STB?": "+16",
	})

	ch, err := DialSocket(ctx, addr, SocketConfig{Timeout: 500 * time.Millisecond})
	require.NoError(t, err)
	defer ch.Close()

	t.Run("Query", func(t *testing.T) {
		resp, err := Query(ctx, ch, "*IDN?")
		require.NoError(t, err)
		assert.Equal(t, "ACME,X1,42,1.0", resp)
		assert.Equal(t, "*IDN?", <-received)
	})

	t.Run("StatusByte", func(t *testing.T) {
		stb, err := ch.ReadStatusByte(ctx)
		require.NoError(t, err)
		assert.Equal(t, byte(16), stb)
		assert.Equal(t, "*STB?", <-received)
	})

	t.Run("ReadTimeout", func(t *testing.T) {
		ch.SetTimeout(50 * time.Millisecond)
		defer ch.SetTimeout(500 * time.Millisecond)

		require.NoError(t, ch.Write(ctx, "*CLS"))
		<-received
		_, err := ch.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := ch.ReadLine(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, ch.Write(ctx, "*IDN?"))
		<-received
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, ch.Clear(ctx))

		// The unread identity response was discarded.
		resp, err := Query(ctx, ch, "*STB?")
		require.NoError(t, err)
		assert.Equal(t, "+16", resp)
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		require.NoError(t, ch.Close())
		require.NoError(t, ch.Close())
		assert.ErrorIs(t, ch.Write(ctx, "*CLS"), ErrClosed)
	})
}
