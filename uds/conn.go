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
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Conn represents a unix domain socket connection that can send and receive
// open file descriptors together with a payload. It wraps [*net.UnixConn].
//
// Use [NewPair] or [NewSeqpacketPair] to create a pair of directly
// peer-to-peer connected Conn objects, or [NewUnixConn] to wrap an already
// connected socket fd, such as one inherited from a parent process. Use
// [Conn.SendWithFds] and [Conn.ReceiveWithFds] to transfer messages with
// open file descriptors piggybacked on.
//
// A Conn does not serialize concurrent senders or receivers: callers sending
// (or receiving) on the same Conn from multiple go routines must do their own
// locking, as otherwise message boundaries become undefined.
type Conn struct {
	*net.UnixConn
}

// NewPair returns a pair of peer-to-peer connected (stream) unix domain
// sockets that can transfer open file descriptors across process boundaries.
//
// Using stream unix domain sockets has the benefit of being able to detect
// when the “other” side has disconnected.
func NewPair() (dupond, dupont *Conn, err error) {
	return newPair(unix.SOCK_STREAM)
}

// NewSeqpacketPair returns a pair of peer-to-peer connected unix domain
// sockets of type SOCK_SEQPACKET. In contrast to stream sockets, seqpacket
// sockets preserve message boundaries, including zero-length messages.
func NewSeqpacketPair() (dupond, dupont *Conn, err error) {
	return newPair(unix.SOCK_SEQPACKET)
}

func newPair(sotype int) (dupond, dupont *Conn, err error) {
	fdpair, err := unix.Socketpair(unix.AF_UNIX, sotype|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, os.NewSyscallError("socketpair", err)
	}
	dupond, err = NewUnixConn(fdpair[0], "dupond")
	if err != nil {
		// fdpair[0] is always closed by now, but we don't want to leak
		// fdpair[1]...
		_ = unix.Close(fdpair[1])
		return nil, nil, err
	}
	dupont, err = NewUnixConn(fdpair[1], "dupont")
	if err != nil {
		// fdpair[1] is always closed by now, so we only need to dispose of
		// the first successfully created Conn.
		_ = dupond.Close()
		return nil, nil, err
	}
	return dupond, dupont, nil
}

// NewUnixConn returns a *Conn for the passed unix domain socket fd; otherwise,
// it returns an error.
//
// Why do we want a UnixConn? Because it has ReadMsgUnix and WriteMsgUnix
// methods for receiving and sending out-of-band data, also known as “control
// information” or “ancillary data” (for instance, see sendmsg(2),
// https://www.man7.org/linux/man-pages/man2/sendmsg.2.html).
//
// Important: NewUnixConn always takes ownership of the passed file descriptor
// and will close it, even in case of error. A caller must not use the passed
// file descriptor anymore and the caller must not close the passed file
// descriptor themselves.
func NewUnixConn(udsfd int, nickname string) (*Conn, error) {
	f := os.NewFile(uintptr(udsfd), nickname)
	if f == nil {
		return nil, errors.New("not a file descriptor")
	}
	defer func() { _ = f.Close() }()
	// net.FileConn would hand us a *net.UnixConn only for stream sockets,
	// while net.FilePacketConn covers stream, seqpacket and datagram unix
	// domain sockets alike.
	netconn, err := net.FilePacketConn(f)
	if err != nil {
		return nil, err
	}
	unixconn, ok := netconn.(*net.UnixConn)
	if !ok {
		_ = netconn.Close()
		return nil, errors.New("not a unix domain socket")
	}
	return &Conn{UnixConn: unixconn}, nil
}

// Dup returns a new file descriptor referencing the same socket as this Conn,
// such as for passing it on to a child process or to a peer using
// [Conn.SendWithFds]. The caller takes ownership of the returned fd and is
// responsible for closing it.
func (c *Conn) Dup() (int, error) {
	rawconn, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	var duperr error
	if err := rawconn.Control(func(sockfd uintptr) {
		fd, duperr = unix.FcntlInt(sockfd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return -1, err
	}
	if duperr != nil {
		return -1, os.NewSyscallError("fcntl", duperr)
	}
	return fd, nil
}
