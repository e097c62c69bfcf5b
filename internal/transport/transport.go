// Package transport provides the byte streams the RPC layer runs over:
// plain TCP, TLS-wrapped TCP, or a single QUIC stream per connection.
// The RPC layer only ever sees net.Conn.
package transport

import (
	"context"
	"crypto/tls"
	"net"
)

const alpnProtocol = "metahub/1"

// ServerTLSConfig loads the certificate identity for TLS or QUIC
// listeners.
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{alpnProtocol},
	}, nil
}

// ClientTLSConfig TLS for dialing. insecure skips verification (test
// setups with self-signed certs).
func ClientTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: insecure,
		MinVersion:         tls.VersionTLS12,
		NextProtos:         []string{alpnProtocol},
	}
}

// Listen opens a TCP listener on addr; tlsConfig nil means plaintext.
func Listen(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	if tlsConfig != nil {
		return tls.Listen("tcp", addr, tlsConfig)
	}
	return net.Listen("tcp", addr)
}

// Dial connects over TCP to addr; tlsConfig nil means plaintext.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	d := &net.Dialer{}
	if tlsConfig != nil {
		td := &tls.Dialer{NetDialer: d, Config: tlsConfig}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}
