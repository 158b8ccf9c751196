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
	"os"

	"golang.org/x/sys/unix"
)

// Fds is a list of open file descriptors that have been received from a
// peer, in the order the peer sent them. The kernel has duplicated them into
// our process, so whoever holds an Fds owns these file descriptors and must
// finally release them using [Fds.Close].
//
// Individual file descriptors can be taken out of an Fds using [Fds.Take] or
// [Fds.File]; ownership then passes to the caller and Close won't touch them
// anymore. A nil *Fds is an empty list.
//
//	n, fds, err := conn.ReceiveWithFds(buff)
//	if err != nil {
//		return err
//	}
//	defer fds.Close()
//	f := fds.File(0, "passed") // now owned by f.
type Fds struct {
	fds []int
}

// add appends the passed fd, refusing to grow beyond [MaxFds].
func (f *Fds) add(fd int) error {
	if len(f.fds) >= MaxFds {
		return &ProtocolError{
			Level:  unix.SOL_SOCKET,
			Type:   unix.SCM_RIGHTS,
			Len:    (len(f.fds) + 1) * sizeofFd,
			Reason: fmt.Sprintf("more than %d file descriptors", MaxFds),
			err:    ErrTooManyFds,
		}
	}
	f.fds = append(f.fds, fd)
	return nil
}

// Len returns the number of file descriptors received, including those that
// have already been taken out.
func (f *Fds) Len() int {
	if f == nil {
		return 0
	}
	return len(f.fds)
}

// Fd returns the i-th file descriptor without transferring ownership, or -1
// if it has already been taken out or closed. The returned fd must not be
// closed by the caller.
func (f *Fds) Fd(i int) int {
	if f == nil || i < 0 || i >= len(f.fds) {
		return -1
	}
	return f.fds[i]
}

// Take transfers ownership of the i-th file descriptor to the caller and
// returns it; the caller then is responsible for closing it. Take returns -1 if
// the i-th file descriptor has already been taken or closed.
func (f *Fds) Take(i int) int {
	fd := f.Fd(i)
	if fd >= 0 {
		f.fds[i] = -1
	}
	return fd
}

// File transfers ownership of the i-th file descriptor to a new *os.File with
// the specified name. It returns nil if the i-th file descriptor has already
// been taken or closed.
func (f *Fds) File(i int, name string) *os.File {
	fd := f.Take(i)
	if fd < 0 {
		return nil
	}
	return os.NewFile(uintptr(fd), name)
}

// Close closes all file descriptors still owned, returning the joined errors
// of all individual closes. It is fine to call Close multiple times.
func (f *Fds) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for i := range f.fds {
		if fd := f.Take(i); fd >= 0 {
			if err := unix.Close(fd); err != nil {
				errs = append(errs, os.NewSyscallError("close", err))
			}
		}
	}
	return errors.Join(errs...)
}

// closeAll closes the passed raw file descriptors, ignoring any errors.
func closeAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}
