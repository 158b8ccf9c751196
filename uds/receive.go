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

package uds

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// receiveOOBSize is the size of the control buffer for receiving: room for
// MaxFds records each carrying a single fd.
var receiveOOBSize = MaxFds * rightsSpace

// aLongTimeAgo is a deadline that has always expired, for unblocking pending
// reads.
var aLongTimeAgo = time.Unix(1, 0)

// ReceiveWithFds receives a single message from the UDS connection, reading its
// data into b and returning the number of data bytes received together with
// the file descriptors that came along with the message, in the order the
// peer sent them. len(b) is the maximum amount of data accepted; b might be
// nil in case no data is expected.
//
// The caller owns the returned file descriptors and must close them, see
// [Fds]. The received file descriptors are close-on-exec.
//
// Receiving zero bytes is not an error and ReceiveWithFds never returns
// [io.EOF]: on stream sockets a peer's orderly shutdown shows as n == 0,
// fds.Len() == 0 and a nil error. On seqpacket sockets this might also be an
// empty message that still carries file descriptors, as sent by peers not
// adding a dummy byte.
//
// ReceiveWithFds rejects a message with an error matching [ErrProtocol] when
// its control data contains anything other than SCM_RIGHTS records, and with
// an error additionally matching [ErrTooManyFds] when the message carries
// more than [MaxFds] file descriptors. In both cases all file descriptors
// that arrived with the message are closed; ReceiveWithFds never returns a
// partial list. All other errors are OS-level errors from the underlying
// recvmsg(2) call.
func (c *Conn) ReceiveWithFds(b []byte) (n int, fds *Fds, err error) {
	// Go's UnixConn.ReadMsgUnix on Linux asks the kernel to set close-on-exec
	// on all received fds, so that they cannot leak into child processes
	// before we had any chance to react.
	oob := make([]byte, receiveOOBSize)
	n, noob, flags, _, err := c.ReadMsgUnix(b, oob)
	if err != nil {
		// Go reports reading zero bytes from stream and seqpacket sockets as
		// io.EOF, yet the control data might still carry fds.
		if n != 0 || !errors.Is(err, io.EOF) {
			raw, _ := rightsIn(oob[:noob])
			closeAll(raw)
			return 0, nil, err
		}
	}
	fds, err = received(oob[:noob], flags)
	if err != nil {
		return 0, nil, err
	}
	return n, fds, nil
}

// received returns the file descriptors from the passed control data or
// otherwise an error. In case of an error, all file descriptors in the
// control data have been closed.
func received(oob []byte, flags int) (*Fds, error) {
	raw, err := rightsIn(oob)
	if err == nil && flags&unix.MSG_CTRUNC != 0 {
		// the kernel ran out of control buffer space and has already dropped
		// the excess fds; we won't present a partial list of what was sent.
		err = &ProtocolError{
			Level:  unix.SOL_SOCKET,
			Type:   unix.SCM_RIGHTS,
			Len:    len(raw) * sizeofFd,
			Reason: "control data truncated",
			err:    ErrTooManyFds,
		}
	}
	fds := &Fds{}
	for _, fd := range raw {
		if err != nil {
			break
		}
		err = fds.add(fd)
	}
	if err != nil {
		closeAll(raw)
		return nil, err
	}
	return fds, nil
}

// ReceiveWithFdsContext works like [Conn.ReceiveWithFds], but additionally
// unblocks a pending receive when the passed context gets cancelled, returning
// the context's error.
//
// Cancellation is implemented by expiring the connection's read deadline;
// afterwards, ReceiveWithFdsContext resets the read deadline so that the
// connection stays usable. Callers using their own read deadlines should thus
// not mix them with context cancellation.
func (c *Conn) ReceiveWithFdsContext(ctx context.Context, b []byte) (n int, fds *Fds, err error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	expired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(expired)
		_ = c.SetReadDeadline(aLongTimeAgo)
	})
	defer func() {
		if !stop() {
			<-expired
			_ = c.SetReadDeadline(time.Time{})
		}
	}()

	n, fds, err = c.ReceiveWithFds(b)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
		return 0, nil, ctx.Err()
	}
	return n, fds, err
}
