// Package client implements the caller side of a metadata RPC session.
package client

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"dev.c0redev.metahub/internal/rpc"
)

// FailError is a Fail reply surfaced as an error.
type FailError struct {
	Code    uint32
	Message string
}

func (e *FailError) Error() string {
	return fmt.Sprintf("server fail %d: %s", e.Code, e.Message)
}

// Client drives one session over an established stream. Not safe for
// concurrent use: the protocol carries request/response pairs in send
// order only.
type Client struct {
	conn   net.Conn
	logger zerolog.Logger
}

func New(conn net.Conn, logger zerolog.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

func (c *Client) Close() error { return c.conn.Close() }

// roundTrip writes one request and reads one reply, skipping any
// Notify messages the server interleaves.
func (c *Client) roundTrip(req rpc.Message) (rpc.Message, error) {
	if err := rpc.Write(c.conn, req); err != nil {
		return nil, err
	}
	for {
		buf, err := rpc.ReadPacket(c.conn)
		if err != nil {
			return nil, err
		}
		msg, err := rpc.Decode(buf)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *rpc.Notify:
			c.logger.Info().Str("message", m.Message).Msg("server notify")
		case *rpc.Fail:
			return nil, &FailError{Code: m.Code, Message: m.Message}
		default:
			return msg, nil
		}
	}
}

// Hello authenticates the session. Must be the first call.
func (c *Client) Hello(protocol uint32, licenseKey []byte, hostname string) error {
	reply, err := c.roundTrip(&rpc.Hello{
		Protocol:   protocol,
		LicenseKey: licenseKey,
		Hostname:   hostname,
	})
	if err != nil {
		return err
	}
	if _, ok := reply.(*rpc.Ok); !ok {
		return fmt.Errorf("unexpected hello reply %T", reply)
	}
	return nil
}

// Pull requests metadata for a set of function hashes.
func (c *Client) Pull(flags uint32, hashes [][]byte) (*rpc.PullMetadataResult, error) {
	reply, err := c.roundTrip(&rpc.PullMetadata{Flags: flags, Hashes: hashes})
	if err != nil {
		return nil, err
	}
	res, ok := reply.(*rpc.PullMetadataResult)
	if !ok {
		return nil, fmt.Errorf("unexpected pull reply %T", reply)
	}
	if len(res.Statuses) != len(hashes) {
		return nil, fmt.Errorf("pull reply has %d statuses for %d hashes", len(res.Statuses), len(hashes))
	}
	return res, nil
}

// Push uploads function metadata.
func (c *Client) Push(flags uint32, idb string, funcs []rpc.FuncEntry) (*rpc.PushMetadataResult, error) {
	reply, err := c.roundTrip(&rpc.PushMetadata{Flags: flags, Idb: idb, Funcs: funcs})
	if err != nil {
		return nil, err
	}
	res, ok := reply.(*rpc.PushMetadataResult)
	if !ok {
		return nil, fmt.Errorf("unexpected push reply %T", reply)
	}
	return res, nil
}
