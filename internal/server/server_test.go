package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dev.c0redev.metahub/internal/client"
	"dev.c0redev.metahub/internal/rpc"
	"dev.c0redev.metahub/internal/server/auth"
	"dev.c0redev.metahub/internal/store"
	"dev.c0redev.metahub/internal/transport"
)

func newTestServer(t *testing.T) (*Server, []byte) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	secret := store.GenerateKey()
	hash, err := auth.HashKey(secret)
	require.NoError(t, err)
	_, err = db.CreateUser("alice", hash)
	require.NoError(t, err)

	return New(db, zerolog.Nop()), []byte("alice:" + secret)
}

func newTestSession(t *testing.T) (*client.Client, []byte) {
	t.Helper()
	srv, key := newTestServer(t)
	serverConn, clientConn := net.Pipe()
	go srv.handleConn(serverConn)
	c := client.New(clientConn, zerolog.Nop())
	t.Cleanup(func() { c.Close() })
	return c, key
}

func TestHelloAuthenticates(t *testing.T) {
	c, key := newTestSession(t)
	require.NoError(t, c.Hello(2, key, "analyst-box"))
}

func TestHelloBadKey(t *testing.T) {
	c, _ := newTestSession(t)
	err := c.Hello(2, []byte("alice:wrong"), "h")
	var fail *client.FailError
	require.ErrorAs(t, err, &fail)
	require.EqualValues(t, failUnauthorized, fail.Code)
}

func TestHelloUnknownUser(t *testing.T) {
	c, _ := newTestSession(t)
	err := c.Hello(2, []byte("mallory:sekrit"), "h")
	var fail *client.FailError
	require.ErrorAs(t, err, &fail)
	require.EqualValues(t, failUnauthorized, fail.Code)
}

func TestHelloUnsupportedProtocol(t *testing.T) {
	c, key := newTestSession(t)
	err := c.Hello(99, key, "h")
	var fail *client.FailError
	require.ErrorAs(t, err, &fail)
	require.EqualValues(t, failUnsupported, fail.Code)
}

func TestPullBeforeHello(t *testing.T) {
	c, _ := newTestSession(t)
	_, err := c.Pull(0, [][]byte{{1, 2, 3, 4}})
	var fail *client.FailError
	require.ErrorAs(t, err, &fail)
	require.EqualValues(t, failBadSequence, fail.Code)
}

func TestPushThenPull(t *testing.T) {
	c, key := newTestSession(t)
	require.NoError(t, c.Hello(2, key, "h"))

	funcs := []rpc.FuncEntry{
		{Name: "memcpy", Len: 64, Hash: []byte("hash-a"), Metadata: []byte("md-a")},
		{Name: "strlen", Len: 32, Hash: []byte("hash-b"), Metadata: []byte("md-b")},
	}
	pushed, err := c.Push(0, "sample.i64", funcs)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 1}, pushed.Statuses)

	// Re-pushing identical metadata is a no-op.
	pushed, err = c.Push(0, "sample.i64", funcs[:1])
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, pushed.Statuses)

	pulled, err := c.Pull(0, [][]byte{[]byte("hash-a"), []byte("missing"), []byte("hash-b")})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 0, 1}, pulled.Statuses)
	require.Len(t, pulled.Funcs, 2)
	require.Equal(t, "memcpy", pulled.Funcs[0].Name)
	require.Equal(t, []byte("md-a"), pulled.Funcs[0].Metadata)
	require.EqualValues(t, 2, pulled.Funcs[0].Popularity)
	require.Equal(t, "strlen", pulled.Funcs[1].Name)
}

func TestDoubleHello(t *testing.T) {
	c, key := newTestSession(t)
	require.NoError(t, c.Hello(2, key, "h"))
	err := c.Hello(2, key, "h")
	var fail *client.FailError
	require.ErrorAs(t, err, &fail)
	require.EqualValues(t, failBadSequence, fail.Code)
}

func TestServeOverTCP(t *testing.T) {
	srv, key := newTestServer(t)

	l, err := transport.Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, l)
	}()

	conn, err := transport.Dial(ctx, l.Addr().String(), nil)
	require.NoError(t, err)
	c := client.New(conn, zerolog.Nop())
	require.NoError(t, c.Hello(2, key, "tcp-client"))
	c.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
