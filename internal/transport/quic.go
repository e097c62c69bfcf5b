package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// streamConn wraps one quic.Stream as a net.Conn.
type streamConn struct {
	*quic.Stream
	conn *quic.Conn
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// DialQUIC dials QUIC to addr, opens one stream, returns it as
// net.Conn.
func DialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	if tlsConfig == nil {
		tlsConfig = ClientTLSConfig(false)
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: stream, conn: conn}, nil
}

// quicListener accepts QUIC connections and hands out their first
// stream as net.Conn, so the session loop is transport-agnostic.
type quicListener struct {
	ql *quic.Listener
}

// ListenQUIC QUIC listen on addr; tlsConfig must carry Certificates.
func ListenQUIC(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	ql, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &quicListener{ql: ql}, nil
}

func (l *quicListener) Accept() (net.Conn, error) {
	conn, err := l.ql.Accept(context.Background())
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(context.Background())
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: stream, conn: conn}, nil
}

func (l *quicListener) Close() error   { return l.ql.Close() }
func (l *quicListener) Addr() net.Addr { return l.ql.Addr() }
