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
	"github.com/onsi/gomega/gcustom"
	"github.com/onsi/gomega/types"
	"github.com/thediveo/fdpass/internal/fdinfo"
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/thediveo/success"
)

// BeSameFileAs succeeds if the actual fd references the same file as the
// expected fd.
func BeSameFileAs(fd int) types.GomegaMatcher {
	return gcustom.MakeMatcher(func(actual int) (bool, error) {
		return fdinfo.SameFile(actual, fd)
	}).WithTemplate("Expected fd {{.Actual}} {{.To}} reference the same file as fd {{.Data}}", fd)
}

// memfds returns n newly created memory files, each with its own inode, so
// that they can be told apart after having been passed around. The memory
// files get closed automatically when the current node ends.
func memfds(n int) []int {
	GinkgoHelper()

	fds := make([]int, 0, n)
	DeferCleanup(func() { closeAll(fds) })
	for range n {
		fds = append(fds, Successful(unix.MemfdCreate("fdpass-test", unix.MFD_CLOEXEC)))
	}
	return fds
}
