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

package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/thediveo/fdpass/uds"
	"golang.org/x/sys/unix"
)

// maxPayload is the largest message payload echoed in one piece.
const maxPayload = 64 * 1024

// echo sends back all messages received on conn together with their fds,
// until the peer disconnects. Messages with control data other than fds are
// dropped.
func echo(conn *uds.Conn, withPidfd bool, log *slog.Logger) error {
	buff := make([]byte, maxPayload)
	for {
		n, fds, err := conn.ReceiveWithFds(buff)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				log.Info("peer disconnected")
				return nil
			case errors.Is(err, uds.ErrProtocol):
				log.Warn("dropping malformed message", slog.String("err", err.Error()))
				continue
			}
			log.Error("cannot receive", slog.String("err", err.Error()))
			return err
		}
		if n == 0 && fds.Len() == 0 {
			log.Info("peer disconnected")
			return nil
		}
		err = reply(conn, buff[:n], fds, withPidfd)
		count := fds.Len()
		_ = fds.Close()
		if err != nil {
			log.Error("cannot echo", slog.String("err", err.Error()))
			return err
		}
		log.Info("echoed message",
			slog.Int("len", n),
			slog.Int("fds", count))
	}
}

// reply sends back the payload b and the received fds, optionally appending a
// PID fd referencing ourselves.
func reply(conn *uds.Conn, b []byte, fds *uds.Fds, withPidfd bool) error {
	out := make([]int, 0, fds.Len()+1)
	for i := range fds.Len() {
		out = append(out, fds.Fd(i))
	}
	if withPidfd && len(out) < uds.MaxFds {
		pidfd, err := unix.PidfdOpen(os.Getpid(), 0)
		if err != nil {
			return os.NewSyscallError("pidfd_open", err)
		}
		defer func() { _ = unix.Close(pidfd) }()
		out = append(out, pidfd)
	}
	_, err := conn.SendWithFds(b, out...)
	return err
}
