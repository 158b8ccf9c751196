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

// SendWithFds sends the passed data as well as the passed file descriptors over
// the UDS connection in a single message, returning the number of data bytes
// sent. Each file descriptor travels in its own control message record
// (ancillary data) of type SCM_RIGHTS, in the order specified.
//
// The kernel duplicates the file descriptors into the receiving process, so
// the passed file descriptors stay open and remain owned by the caller.
//
// On stream sockets the kernel might send only part of the data; the returned
// count is authoritative. When sending file descriptors without any data over
// a stream or seqpacket socket, a single zero byte gets transmitted instead,
// as otherwise the kernel would not transfer the file descriptors; the
// returned count then is zero.
//
// SendWithFds returns an error wrapping [ErrInvalidArgument] without sending
// anything if any of the file descriptors cannot be represented on the wire,
// such as negative values. All other errors are OS-level errors from the
// underlying sendmsg(2) call, with the [syscall.Errno] accessible using
// [errors.As] or [errors.Is].
func (c *Conn) SendWithFds(b []byte, fds ...int) (n int, err error) {
	oob, err := rightsOut(fds)
	if err != nil {
		return 0, err
	}
	n, _, err = c.WriteMsgUnix(b, oob, nil)
	return n, err
}
