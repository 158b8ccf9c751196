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
	"fmt"
)

var (
	// ErrInvalidArgument is returned when the caller passed a file descriptor
	// list that cannot possibly be sent, such as negative fd numbers. It is
	// raised before any syscall is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProtocol matches any [*ProtocolError].
	ErrProtocol = errors.New("unexpected control message")

	// ErrTooManyFds matches a [*ProtocolError] caused by a peer sending more
	// than [MaxFds] file descriptors in a single message.
	ErrTooManyFds = errors.New("too many file descriptors")
)

// ProtocolError describes received control data that does not match the
// expected SCM_RIGHTS shape. When receiving fails with a ProtocolError, all
// file descriptors that arrived with the offending message have already been
// closed.
type ProtocolError struct {
	Level  int32  // control message level, such as unix.SOL_SOCKET.
	Type   int32  // control message type, such as unix.SCM_RIGHTS.
	Len    int    // length of the control message data, without header.
	Reason string // human-readable details.

	err error // optional, more specific reason.
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (level %d, type %d, data length %d)",
		ErrProtocol.Error(), e.Reason, e.Level, e.Type, e.Len)
}

// Is reports a match for [ErrProtocol].
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// Unwrap returns the more specific reason, if any, such as [ErrTooManyFds].
func (e *ProtocolError) Unwrap() error { return e.err }
