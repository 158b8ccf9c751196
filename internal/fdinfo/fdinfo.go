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

package fdinfo

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thediveo/ioctl"
	"golang.org/x/sys/unix"
)

// Linux kernel [ioctl(2)] command for [namespace relationship queries].
//
// [ioctl(2)]: https://man7.org/linux/man-pages/man2/ioctl.2.html
// [namespace relationship queries]: https://elixir.bootlin.com/linux/v6.2.11/source/include/uapi/linux/nsfs.h
const _NSIO = 0xb7

// Returns the type of namespace CLONE_NEW* value referred to by a file
// descriptor.
var NS_GET_NSTYPE = ioctl.IO(_NSIO, 0x3)

func procfd(fd int) string {
	return "/proc/self/fd/" + strconv.FormatInt(int64(fd), 10)
}

// Target returns what the passed file descriptor references, such as a file
// system path, “socket:[4242]”, or “anon_inode:[pidfd]”.
func Target(fd int) (string, error) {
	return os.Readlink(procfd(fd))
}

// SameFile reports whether both file descriptors reference the same file
// (inode), even if they are different file descriptions.
func SameFile(fd1, fd2 int) (bool, error) {
	var st1, st2 unix.Stat_t
	if err := unix.Fstat(fd1, &st1); err != nil {
		return false, os.NewSyscallError("fstat", err)
	}
	if err := unix.Fstat(fd2, &st2); err != nil {
		return false, os.NewSyscallError("fstat", err)
	}
	return st1.Dev == st2.Dev && st1.Ino == st2.Ino, nil
}

// NamespaceType returns the CLONE_NEW* type of the Linux kernel namespace the
// passed file descriptor references; otherwise, it returns an error.
func NamespaceType(fd int) (int, error) {
	typ, err := unix.IoctlRetInt(fd, NS_GET_NSTYPE)
	if err != nil {
		return 0, os.NewSyscallError("ioctl NS_GET_NSTYPE", err)
	}
	return typ, nil
}

// PIDfromPIDFd returns the PID of the process referenced by the passed PID fd;
// otherwise, it returns an error.
//
// See also: https://stackoverflow.com/a/74856311
func PIDfromPIDFd(pidfd int) (int, error) {
	target, err := Target(pidfd)
	if err != nil {
		return 0, err
	}
	if target != "anon_inode:[pidfd]" {
		return 0, fmt.Errorf("fd %d is not a PID fd", pidfd)
	}

	fdinfo, err := os.ReadFile("/proc/self/fdinfo/" + strconv.FormatInt(int64(pidfd), 10))
	if err != nil {
		return 0, err
	}
	for line := range strings.Lines(string(fdinfo)) {
		value, ok := strings.CutPrefix(line, "Pid:\t")
		if !ok || value == "" {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSuffix(value, "\n"), 10, 32)
		if err != nil {
			return 0, err
		}
		return int(pid), nil
	}
	return 0, fmt.Errorf("fd %d has no PID information", pidfd)
}
