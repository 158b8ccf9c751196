// Copyright 2025 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handoff

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/thediveo/fdpass/internal/fdinfo"
	"github.com/thediveo/fdpass/uds"
)

// Handler takes over handed-off connections. Handoff is called on its own go
// routine and is responsible for closing the passed connection.
type Handler interface {
	Handoff(c net.Conn)
}

// HandlerFunc adapts an ordinary function to a [Handler].
type HandlerFunc func(c net.Conn)

// Handoff calls f(c).
func (f HandlerFunc) Handoff(c net.Conn) { f(c) }

// Option configures [Serve].
type Option func(*server)

// WithLogger sets the logger to use instead of [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *server) { s.log = log }
}

// WithID sets the identifier to use in log records, instead of a generated
// one.
func WithID(id string) Option {
	return func(s *server) { s.id = id }
}

type server struct {
	log     *slog.Logger
	id      string
	handler Handler
}

// Serve receives handed-off connections on the passed *uds.Conn until the
// peer disconnects or the passed context gets cancelled, passing them on to
// the specified handler.
//
// Each message must carry exactly one connection fd; messages with no or
// multiple fds, prefixes longer than [MaxPrefix], as well as malformed
// messages get logged and dropped, closing any fds that came with them. Serve does not wait for the handlers to
// finish.
//
// Serve returns nil when the peer disconnects, the context's error when
// cancelled, and otherwise the error that caused receiving to fail.
func Serve(ctx context.Context, conn *uds.Conn, handler Handler, opts ...Option) error {
	s := &server{
		log:     slog.Default(),
		handler: handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = petname.Generate(2, "-")
	}
	s.log.Info("handoff serving loop started", slog.String("handoff-id", s.id))
	defer func() {
		s.log.Info("handoff serving loop terminated", slog.String("handoff-id", s.id))
	}()

	// one byte more than the largest valid handoff, so that we can tell
	// oversized handoffs apart from those getting cut to size by the kernel.
	buff := make([]byte, 1+MaxPrefix+1)
	for {
		n, fds, err := conn.ReceiveWithFdsContext(ctx, buff)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.log.Info("context cancelled", slog.String("handoff-id", s.id))
				return ctx.Err()
			// https://go.dev/wiki/ErrorValueFAQ
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				s.log.Info("peer disconnected", slog.String("handoff-id", s.id))
				return nil
			case errors.Is(err, uds.ErrProtocol):
				s.log.Warn("dropping malformed handoff",
					slog.String("handoff-id", s.id),
					slog.String("err", err.Error()))
				continue
			}
			s.log.Error("cannot receive",
				slog.String("handoff-id", s.id),
				slog.String("err", err.Error()))
			return err
		}
		if n == 0 && fds.Len() == 0 {
			s.log.Info("peer disconnected", slog.String("handoff-id", s.id))
			return nil
		}
		s.dispatch(buff[:n], fds)
	}
}

// dispatch the received connection fd to the handler, replaying the prefix
// first. It always disposes of the passed fds, except for the one it hands
// over to the handler.
func (s *server) dispatch(payload []byte, fds *uds.Fds) {
	defer func() { _ = fds.Close() }()

	if fds.Len() != 1 {
		s.log.Warn("dropping handoff with unexpected number of fds",
			slog.String("handoff-id", s.id),
			slog.Int("fds", fds.Len()))
		return
	}
	if len(payload) == 0 || payload[0] != tag {
		s.log.Warn("dropping handoff with malformed payload",
			slog.String("handoff-id", s.id),
			slog.Int("len", len(payload)))
		return
	}
	if len(payload) > 1+MaxPrefix {
		s.log.Warn("dropping handoff with oversized prefix",
			slog.String("handoff-id", s.id),
			slog.Int("max", MaxPrefix))
		return
	}
	target, _ := fdinfo.Target(fds.Fd(0))
	f := fds.File(0, "handoff")
	// net.FileConn works on its own duplicate of the fd, so we need to close
	// our original in any case.
	c, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		s.log.Warn("dropping handoff of unusable fd",
			slog.String("handoff-id", s.id),
			slog.String("fd", target),
			slog.String("err", err.Error()))
		return
	}
	remote := "unknown"
	if raddr := c.RemoteAddr(); raddr != nil {
		remote = raddr.String()
	}
	prefix := bytes.Clone(payload[1:])
	s.log.Info("connection handed off",
		slog.String("handoff-id", s.id),
		slog.String("fd", target),
		slog.String("remote", remote),
		slog.Int("prefix", len(prefix)))
	go s.handler.Handoff(&prefixedConn{
		Conn: c,
		r:    io.MultiReader(bytes.NewReader(prefix), c),
	})
}

// prefixedConn is a net.Conn that replays a prefix before reading on from the
// wrapped connection.
type prefixedConn struct {
	net.Conn
	r io.Reader
}

func (c *prefixedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}
