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
	"fmt"
	"syscall"

	"github.com/thediveo/fdpass/uds"
)

// MaxPrefix is the maximum number of already-read bytes that can be handed
// over together with a connection.
const MaxPrefix = 64 * 1024

// tag starts each handoff message. The Go runtime sends a single zero byte
// when passing fds without any payload, so an empty prefix must not result in
// an empty payload.
const tag = 'H'

// Pass hands over the connection c, together with the bytes already read from
// it, to the peer at the other end of conn. The kernel passes a duplicate of
// the connection's file descriptor, so the caller still needs to close c
// afterwards in order to release its own reference; this does not shut down
// the connection as long as the caller does not call any CloseRead or
// CloseWrite on it.
//
// Pass returns an error wrapping [uds.ErrInvalidArgument] if the prefix is
// longer than [MaxPrefix].
func Pass(conn *uds.Conn, c syscall.Conn, prefix []byte) error {
	if len(prefix) > MaxPrefix {
		return fmt.Errorf("%w: prefix of %d bytes exceeds maximum of %d bytes",
			uds.ErrInvalidArgument, len(prefix), MaxPrefix)
	}
	rawconn, err := c.SyscallConn()
	if err != nil {
		return err
	}
	payload := make([]byte, 0, 1+len(prefix))
	payload = append(payload, tag)
	payload = append(payload, prefix...)

	var n int
	var senderr error
	// The connection's fd stays valid only while inside Control.
	if err := rawconn.Control(func(fd uintptr) {
		n, senderr = conn.SendWithFds(payload, int(fd))
	}); err != nil {
		return err
	}
	if senderr != nil {
		return senderr
	}
	if n != len(payload) {
		return fmt.Errorf("short handoff, sent only %d out of %d bytes", n, len(payload))
	}
	return nil
}
