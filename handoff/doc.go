/*
Package handoff hands over accepted network connections from one process to
another, together with the bytes already read from them.

The typical setup is a “porter” process accepting client connections on a
public port, peeking at the first bytes of a request to find out where it
should go, and then passing the connection on to the process in charge using
[Pass]. That process runs [Serve] on its end of the unix domain socket,
which turns each handed-off connection back into a [net.Conn] that first
replays the bytes the porter already consumed, and then hands it to a
[Handler]. For the handler it then looks as if it had read the entire
connection data stream itself.

Handoffs travel over SOCK_SEQPACKET unix domain sockets, such as created by
[uds.NewSeqpacketPair], so that each handoff keeps its message boundaries.
*/
package handoff
