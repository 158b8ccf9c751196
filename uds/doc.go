/*
Package uds supports transferring open file descriptors together with a
payload across process boundaries using unix domain sockets.

[Conn.SendWithFds] sends a payload and a list of file descriptors in a single
message, with each file descriptor in its own SCM_RIGHTS control message
record (ancillary data). [Conn.ReceiveWithFds] receives such a message,
returning the payload and the file descriptors in the order they were sent.
Peers implemented in other languages interoperate as long as they use plain
SCM_RIGHTS records.

Both operations block the calling go routine until the kernel has accepted
or delivered a message. There are no timeouts of their own: use the read and
write deadlines of the underlying [net.UnixConn] instead, or
[Conn.ReceiveWithFdsContext].

Socket lifecycle stays with the caller: [NewPair] and [NewSeqpacketPair]
are merely conveniences for creating connected socket pairs, such as to pass
one end on to a child process.

# Limits

A single receive accepts at most [MaxFds] file descriptors. Messages with
more file descriptors are rejected with [ErrTooManyFds] after closing all of
them, instead of silently truncating the list.

# Trivia

“[UDS]” is short for “unix domain socket”.

[UDS]: https://en.wikipedia.org/wiki/Unix_domain_socket
*/
package uds
