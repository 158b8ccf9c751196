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
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/thediveo/fdpass/uds"
	"github.com/thediveo/safe"
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gleak"
	. "github.com/thediveo/fdooze"
	. "github.com/thediveo/success"
)

var _ = Describe("handing off connections", func() {

	var logbuff *safe.Buffer
	var log *slog.Logger

	BeforeEach(func() {
		goodfds := Filedescriptors()
		goodgos := Goroutines()
		DeferCleanup(func() {
			Eventually(Goroutines).Within(2 * time.Second).ProbeEvery(100 * time.Millisecond).
				ShouldNot(HaveLeaked(goodgos))
			Eventually(Filedescriptors).Within(2 * time.Second).ProbeEvery(100 * time.Millisecond).
				ShouldNot(HaveLeakedFds(goodfds))
		})

		logbuff = &safe.Buffer{}
		log = slog.New(slog.NewTextHandler(io.MultiWriter(logbuff, GinkgoWriter), &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	})

	// connected returns a pair of connected seqpacket UDS's that get closed
	// automatically at the end of the current node.
	connected := func() (dupond, dupont *uds.Conn) {
		GinkgoHelper()
		dupond, dupont = Successful2R(uds.NewSeqpacketPair())
		DeferCleanup(func() {
			_ = dupond.Close()
			_ = dupont.Close()
		})
		return dupond, dupont
	}

	// serve runs Serve in the background, returning a channel that receives
	// Serve's result.
	serve := func(ctx context.Context, conn *uds.Conn, handler Handler) <-chan error {
		done := make(chan error, 1)
		go func() {
			done <- Serve(ctx, conn, handler, WithLogger(log), WithID("test-handoff"))
		}()
		return done
	}

	unexpected := HandlerFunc(func(c net.Conn) {
		defer GinkgoRecover()
		_ = c.Close()
		Fail("unexpected handoff")
	})

	It("runs until cancelled", func(ctx context.Context) {
		_, dupont := connected()
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()

		done := serve(ctx, dupont, unexpected)
		Eventually(done).Within(5 * time.Second).Should(Receive(MatchError(context.DeadlineExceeded)))
		Expect(logbuff.String()).To(SatisfyAll(
			ContainSubstring("handoff-id=test-handoff"),
			ContainSubstring("context cancelled")))
	})

	It("terminates when the peer disconnects", func(ctx context.Context) {
		dupond, dupont := connected()

		done := serve(ctx, dupont, unexpected)
		Consistently(done).Within(500 * time.Millisecond).ShouldNot(Receive())
		Expect(dupond.Close()).To(Succeed())
		Eventually(done).Within(5 * time.Second).Should(Receive(BeNil()))
		Expect(logbuff.String()).To(ContainSubstring("peer disconnected"))
	})

	It("terminates when its own connection gets closed", func(ctx context.Context) {
		_, dupont := connected()

		done := serve(ctx, dupont, unexpected)
		Consistently(done).Within(250 * time.Millisecond).ShouldNot(Receive())
		Expect(dupont.Close()).To(Succeed())
		Eventually(done).Within(5 * time.Second).Should(Receive(BeNil()))
	})

	It("hands off a network connection together with its prefix", func(ctx context.Context) {
		dupond, dupont := connected()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		handled := make(chan string, 1)
		done := serve(ctx, dupont, HandlerFunc(func(c net.Conn) {
			defer GinkgoRecover()
			defer func() { _ = c.Close() }()
			line := Successful(bufio.NewReader(c).ReadString('\n'))
			handled <- line
			Expect(c.Write([]byte("pong\n"))).To(Equal(5))
		}))

		l := Successful(net.Listen("tcp", "127.0.0.1:0"))
		defer func() { _ = l.Close() }()
		client := Successful(net.Dial("tcp", l.Addr().String()))
		defer func() { _ = client.Close() }()
		accepted := Successful(l.Accept())

		Expect(client.Write([]byte("ping /somewhere\n"))).To(Equal(16))
		// the porter peeks at the beginning of the request, and then hands
		// off the connection including what it already has read.
		peeked := make([]byte, 5)
		Expect(io.ReadFull(accepted, peeked)).To(Equal(5))
		Expect(Pass(dupond, accepted.(*net.TCPConn), peeked)).To(Succeed())
		Expect(accepted.Close()).To(Succeed())

		Eventually(handled).Within(2 * time.Second).Should(Receive(Equal("ping /somewhere\n")))
		Expect(client.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		Expect(bufio.NewReader(client).ReadString('\n')).To(Equal("pong\n"))
		Expect(logbuff.String()).To(ContainSubstring("connection handed off"))

		cancel()
		Eventually(done).Within(2 * time.Second).Should(Receive(MatchError(context.Canceled)))
	})

	It("drops broken handoffs", func(ctx context.Context) {
		dupond, dupont := connected()
		done := serve(ctx, dupont, unexpected)

		memfd := func() int {
			GinkgoHelper()
			fd := Successful(unix.MemfdCreate("handoff-test", unix.MFD_CLOEXEC))
			DeferCleanup(func() { _ = unix.Close(fd) })
			return fd
		}

		Expect(dupond.SendWithFds([]byte{tag})).To(Equal(1))
		Eventually(logbuff.String).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
			Should(ContainSubstring("unexpected number of fds"))

		Expect(dupond.SendWithFds([]byte{tag}, memfd(), memfd())).To(Equal(1))
		Eventually(logbuff.String).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
			Should(ContainSubstring("fds=2"))

		Expect(dupond.SendWithFds([]byte("X"), memfd())).To(Equal(1))
		Eventually(logbuff.String).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
			Should(ContainSubstring("malformed payload"))

		Expect(dupond.SendWithFds([]byte{tag}, memfd())).To(Equal(1))
		Eventually(logbuff.String).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
			Should(ContainSubstring("unusable fd"))

		oversized := append([]byte{tag}, make([]byte, MaxPrefix+1)...)
		Expect(dupond.SendWithFds(oversized, memfd())).To(Equal(len(oversized)))
		Eventually(logbuff.String).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
			Should(ContainSubstring("oversized prefix"))

		Expect(dupond.Close()).To(Succeed())
		Eventually(done).Within(5 * time.Second).Should(Receive(BeNil()))
	})

	It("drops messages with unexpected control data", func(ctx context.Context) {
		dupond, dupont := connected()
		done := serve(ctx, dupont, unexpected)

		oob := unix.UnixCredentials(&unix.Ucred{
			Pid: int32(os.Getpid()),
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		})
		Expect(Successful(dupont.SyscallConn()).Control(func(fd uintptr) {
			Expect(unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PASSCRED, 1)).To(Succeed())
		})).To(Succeed())
		_, _, err := dupond.WriteMsgUnix([]byte{tag}, oob, nil)
		Expect(err).NotTo(HaveOccurred())
		Eventually(logbuff.String).Within(2 * time.Second).ProbeEvery(50 * time.Millisecond).
			Should(ContainSubstring("dropping malformed handoff"))

		Expect(dupond.Close()).To(Succeed())
		Eventually(done).Within(5 * time.Second).Should(Receive(BeNil()))
	})

	Context("passing", func() {

		It("rejects oversized prefixes", func() {
			dupond, dupont := connected()
			Expect(Pass(dupond, dupont, make([]byte, MaxPrefix+1))).To(
				MatchError(uds.ErrInvalidArgument))
		})

		It("passes files", func() {
			dupond, dupont := connected()
			null := Successful(os.Open("/dev/null"))
			defer func() { _ = null.Close() }()

			Expect(Pass(dupond, null, nil)).To(Succeed())
			buff := make([]byte, 16)
			n, fds := Successful2R(dupont.ReceiveWithFds(buff))
			defer func() { _ = fds.Close() }()
			Expect(buff[:n]).To(Equal([]byte{tag}))
			Expect(fds.Len()).To(Equal(1))
		})

		It("reports failure to send", func() {
			dupond, dupont := connected()
			Expect(dupont.Close()).To(Succeed())
			null := Successful(os.Open("/dev/null"))
			defer func() { _ = null.Close() }()

			Expect(Pass(dupond, null, []byte("foo"))).To(HaveOccurred())
		})

	})

	It("replays the prefix", func() {
		dupond, dupont := net.Pipe()
		defer func() {
			_ = dupond.Close()
			_ = dupont.Close()
		}()
		go func() {
			defer GinkgoRecover()
			_, _ = dupond.Write([]byte(" world"))
			_ = dupond.Close()
		}()
		c := &prefixedConn{
			Conn: dupont,
			r:    io.MultiReader(bytes.NewReader([]byte("hello,")), dupont),
		}
		Expect(io.ReadAll(c)).To(Equal([]byte("hello, world")))
	})

})
