// Package server runs RPC sessions: one connection, one session, a
// Hello handshake, then pull/push requests answered in order.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dev.c0redev.metahub/internal/rpc"
	"dev.c0redev.metahub/internal/server/auth"
	"dev.c0redev.metahub/internal/store"
)

// Protocol revisions this server speaks.
const (
	minProtocol = 1
	maxProtocol = 2
)

// idleTimeout bounds how long a session may sit between packets. The
// RPC layer itself carries no timeouts; the deadline is armed here
// before every read.
const idleTimeout = 5 * time.Minute

// Fail codes sent to clients.
const (
	failUnauthorized = 1
	failBadSequence  = 2
	failUnsupported  = 3
	failInternal     = 4
)

// Server owns the store and accepts metadata RPC sessions.
type Server struct {
	db     *store.DB
	logger zerolog.Logger
}

func New(db *store.DB, logger zerolog.Logger) *Server {
	return &Server{db: db, logger: logger}
}

// Serve accepts sessions on l until ctx is cancelled. It returns once
// the listener is closed and all sessions have finished.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	var g errgroup.Group
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		conn, err := l.Accept()
		if err != nil {
			_ = g.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		g.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

type session struct {
	srv  *Server
	conn net.Conn
	log  zerolog.Logger
	user *store.User
}

// handleConn runs one session until the peer goes away or misbehaves.
// Sequencing lives here, not in the RPC layer: Hello must precede
// everything else.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	sess := &session{
		srv:  s,
		conn: conn,
		log: s.logger.With().
			Str("conn", uuid.NewString()).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
	sess.log.Debug().Msg("session opened")

	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		buf, err := rpc.ReadPacket(sess.conn)
		if err != nil {
			sess.logReadError(err)
			return
		}
		msg, err := rpc.Decode(buf)
		if err != nil {
			// Version/encoding mismatch: tell the peer, then
			// drop the connection.
			sess.log.Warn().Err(err).Msg("undecodable packet")
			_ = rpc.Write(sess.conn, &rpc.Fail{Code: failUnsupported, Message: err.Error()})
			return
		}

		reply, fatal := sess.dispatch(msg)
		if reply != nil {
			if err := rpc.Write(sess.conn, reply); err != nil {
				sess.log.Warn().Err(err).Msg("write failed")
				return
			}
		}
		if fatal {
			return
		}
	}
}

func (sess *session) logReadError(err error) {
	switch {
	case errors.Is(err, rpc.ErrUnexpectedEOF):
		sess.log.Debug().Msg("session closed by peer")
	case errors.Is(err, rpc.ErrInvalidData):
		sess.log.Warn().Err(err).Msg("invalid packet, dropping connection")
	default:
		sess.log.Warn().Err(err).Msg("read failed")
	}
}

// dispatch answers one message. A nil reply with fatal=false means the
// message needed no response.
func (sess *session) dispatch(msg rpc.Message) (reply rpc.Message, fatal bool) {
	if sess.user == nil {
		h, ok := msg.(*rpc.Hello)
		if !ok {
			sess.log.Warn().Type("message", msg).Msg("request before hello")
			return &rpc.Fail{Code: failBadSequence, Message: "hello required"}, true
		}
		return sess.handleHello(h)
	}

	switch m := msg.(type) {
	case *rpc.Hello:
		return &rpc.Fail{Code: failBadSequence, Message: "hello already received"}, true
	case *rpc.PullMetadata:
		return sess.handlePull(m)
	case *rpc.PushMetadata:
		return sess.handlePush(m)
	case *rpc.Notify:
		sess.log.Info().Str("message", m.Message).Msg("client notify")
		return nil, false
	default:
		sess.log.Warn().Type("message", msg).Msg("unexpected message")
		return &rpc.Fail{Code: failBadSequence, Message: "unexpected message"}, true
	}
}

func (sess *session) handleHello(m *rpc.Hello) (rpc.Message, bool) {
	if m.Protocol < minProtocol || m.Protocol > maxProtocol {
		sess.log.Warn().Uint32("protocol", m.Protocol).Msg("unsupported protocol revision")
		return &rpc.Fail{Code: failUnsupported, Message: "unsupported protocol revision"}, true
	}

	login, secret, err := auth.SplitLicenseKey(m.LicenseKey)
	if err != nil {
		return &rpc.Fail{Code: failUnauthorized, Message: "invalid license key"}, true
	}
	user, err := sess.srv.db.UserByLogin(login)
	if err != nil {
		sess.log.Error().Err(rpc.DbErr(err)).Msg("user lookup failed")
		return &rpc.Fail{Code: failInternal, Message: "internal error"}, true
	}
	if user == nil || !auth.CheckKey(secret, user.KeyHash) {
		sess.log.Warn().Str("login", login).Msg("authentication failed")
		return &rpc.Fail{Code: failUnauthorized, Message: "invalid license key"}, true
	}

	sess.user = user
	sess.log = sess.log.With().Str("user", user.Login).Logger()
	sess.log.Info().Uint32("protocol", m.Protocol).Str("hostname", m.Hostname).Msg("session authenticated")
	return &rpc.Ok{}, false
}

func (sess *session) handlePull(m *rpc.PullMetadata) (rpc.Message, bool) {
	res := &rpc.PullMetadataResult{
		Statuses: make([]uint32, 0, len(m.Hashes)),
	}
	for _, hash := range m.Hashes {
		f, err := sess.srv.db.FuncByHash(hash)
		if err != nil {
			sess.log.Error().Err(rpc.DbErr(err)).Msg("pull query failed")
			return &rpc.Fail{Code: failInternal, Message: "metadata lookup failed"}, true
		}
		if f == nil {
			res.Statuses = append(res.Statuses, 0)
			continue
		}
		res.Statuses = append(res.Statuses, 1)
		res.Funcs = append(res.Funcs, rpc.FuncInfo{
			Name:       f.Name,
			Len:        f.Len,
			Metadata:   f.Metadata,
			Popularity: f.Popularity,
		})
	}
	sess.log.Debug().Int("requested", len(m.Hashes)).Int("hits", len(res.Funcs)).Msg("pull")
	return res, false
}

func (sess *session) handlePush(m *rpc.PushMetadata) (rpc.Message, bool) {
	res := &rpc.PushMetadataResult{
		Statuses: make([]uint32, 0, len(m.Funcs)),
	}
	for i := range m.Funcs {
		f := &m.Funcs[i]
		changed, err := sess.srv.db.SaveFunc(sess.user.ID, f.Name, f.Len, f.Hash, f.Metadata)
		if err != nil {
			sess.log.Error().Err(rpc.DbErr(err)).Msg("push store failed")
			return &rpc.Fail{Code: failInternal, Message: "metadata store failed"}, true
		}
		if changed {
			res.Statuses = append(res.Statuses, 1)
		} else {
			res.Statuses = append(res.Statuses, 0)
		}
	}
	sess.log.Debug().Str("idb", m.Idb).Int("funcs", len(m.Funcs)).Msg("push")
	return res, false
}
