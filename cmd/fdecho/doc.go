/*
Command fdecho echoes messages together with their file descriptors back to
the peer at the other end of a connected unix domain socket. It is not
intended to be run directly from the CLI, but instead as an unrelated peer
process in cross-process fd passing tests.

	fdecho [--fd N] [--pidfd]

The command expects the file descriptor number 3 (or the one given by --fd)
to be open and to be a connected unix domain socket. For each message
received it sends back the same payload and the same file descriptors. With
--pidfd it additionally appends a PID fd referencing itself, as long as this
stays within [uds.MaxFds].

The command terminates when the connected peer socket closes (disconnects).
*/
package main

import "github.com/thediveo/fdpass/uds"

var _ = uds.MaxFds // make uds.xxx true hyperlinks
