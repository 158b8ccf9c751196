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
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// MaxFds is the maximum number of file descriptors a single receive accepts.
// Messages carrying more file descriptors are rejected with [ErrTooManyFds].
const MaxFds = 32

// sizeofFd is the size of a file descriptor number on the wire, that is, the
// size of a C int.
const sizeofFd = 4

// rightsSpace is the amount of control buffer space taken up by a single
// SCM_RIGHTS record carrying exactly one file descriptor, including the
// header and alignment padding.
var rightsSpace = unix.CmsgSpace(sizeofFd)

// rightsOut returns the control data for passing the specified file
// descriptors, consisting of one SCM_RIGHTS record per file descriptor in the
// order given. Please note that unix.UnixRights returns a single record that
// would carry all passed fds, so we ask it for one fd at a time instead.
func rightsOut(fds []int) ([]byte, error) {
	if len(fds) == 0 {
		return nil, nil
	}
	oob := make([]byte, 0, len(fds)*rightsSpace)
	for idx, fd := range fds {
		if fd < 0 || fd > math.MaxInt32 {
			return nil, fmt.Errorf("%w: fd #%d has invalid value %d",
				ErrInvalidArgument, idx, fd)
		}
		oob = append(oob, unix.UnixRights(fd)...)
	}
	return oob, nil
}

// rightsIn walks the records in the passed control data and returns the file
// descriptors found in SCM_RIGHTS records, in order. Any other record, or an
// SCM_RIGHTS record not carrying whole file descriptors, results in a
// *ProtocolError.
//
// rightsIn always returns all the file descriptors it found, even in case of
// an error, so that the caller can dispose of them. It never closes them
// itself.
//
// Sending puts each fd into its own record, but Linux coalesces all
// SCM_RIGHTS records of a message into a single record on delivery. Thus,
// this checks for whole fds instead of exactly one fd per record.
func rightsIn(oob []byte) (fds []int, err error) {
	for len(oob) > 0 {
		hdr, data, remainder, perr := unix.ParseOneSocketControlMessage(oob)
		if perr != nil {
			if err == nil {
				err = &ProtocolError{
					Len:    len(oob),
					Reason: "malformed control message header",
					err:    perr,
				}
			}
			break
		}
		oob = remainder

		var reason string
		switch {
		case hdr.Level != unix.SOL_SOCKET || hdr.Type != unix.SCM_RIGHTS:
			reason = "not passing rights"
		case len(data) == 0 || len(data)%sizeofFd != 0:
			reason = "not carrying whole file descriptors"
		default:
			rights, rerr := unix.ParseUnixRights(&unix.SocketControlMessage{
				Header: hdr,
				Data:   data,
			})
			fds = append(fds, rights...)
			if rerr == nil {
				continue
			}
			reason = rerr.Error()
		}
		if err == nil {
			err = &ProtocolError{
				Level:  hdr.Level,
				Type:   hdr.Type,
				Len:    len(data),
				Reason: reason,
			}
		}
	}
	return fds, err
}
