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

package gobmsg

import (
	"fmt"
	"io"

	"github.com/thediveo/fdpass/uds"
	"golang.org/x/sys/unix"
)

// Conn exchanges gob-encoded messages with open file descriptors piggybacked
// on. A Conn cannot be used concurrently.
type Conn struct {
	conn *uds.Conn
	enc  *Encoder
	dec  *Decoder
}

// NewConn returns a new Conn sending and receiving messages over the passed
// connection. The caller remains responsible for closing conn.
func NewConn(conn *uds.Conn) *Conn {
	return &Conn{
		conn: conn,
		enc:  NewEncoder(),
		dec:  NewDecoder(),
	}
}

// Send encodes the passed value in gob form and sends it as a single message,
// rejecting messages larger than 8 KiB with an error wrapping
// [uds.ErrInvalidArgument]. If v implements
// [FdsEncoder], its file descriptors get passed out-of-band. Send takes
// ownership of these file descriptors and always closes them, as they are
// either now in transit with the kernel in charge, or the kernel didn't take
// them.
//
// When sending polymorphic messages, pass a pointer to the interface value,
// see also the gob [interface example].
//
// [interface example]: https://pkg.go.dev/encoding/gob#example-package-Interface
func (c *Conn) Send(v any) error {
	var fds []int
	if fdsencoder, ok := implementation[FdsEncoder](v); ok {
		fds = fdsencoder.EncodeFds()
	}
	defer func() {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
	}()
	msg, err := c.enc.Encode(v)
	if err != nil {
		return err
	}
	_, err = c.conn.SendWithFds(msg, fds...)
	return err
}

// Receive receives the next message and decodes it into v, which must be a
// pointer. If v implements [FdsDecoder], it gets passed the file descriptors
// that came with the message; Receive closes all file descriptors not taken
// by v. Receive rejects file descriptors for any other v with an error
// matching [uds.ErrProtocol].
//
// Receive returns [io.EOF] when the peer has disconnected.
func (c *Conn) Receive(v any) error {
	n, fds, err := c.conn.ReceiveWithFds(c.dec.Buffer())
	if err != nil {
		return err
	}
	defer func() { _ = fds.Close() }()
	if n == 0 && fds.Len() == 0 {
		return io.EOF
	}
	if err := c.dec.Decode(n, v); err != nil {
		return err
	}
	if fds.Len() == 0 {
		return nil
	}
	fdsdecoder, ok := implementation[FdsDecoder](v)
	if !ok {
		return fmt.Errorf("%w: %T doesn't accept file descriptors, dropped %d",
			uds.ErrProtocol, v, fds.Len())
	}
	fdsdecoder.DecodeFds(fds)
	return nil
}
