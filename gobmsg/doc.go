/*
Package gobmsg exchanges gob-encoded messages together with open file
descriptors over a [uds.Conn].

Message types that carry file descriptors implement [FdsEncoder] to move their
fd fields out of the gob-encoded payload and into the message's control data,
and [FdsDecoder] to pick them up again on the receiving side. [AuxiliaryFds]
helps with the former:

	func (r *Reply) EncodeFds() []int {
		return gobmsg.AuxiliaryFds(nil).Borrow(&r.Conn).Borrow(&r.Netns)
	}

Each message is self-contained, carrying the gob type descriptions it needs,
so a message rejected when sending or failing to decode doesn't affect the
messages that follow. A [Conn] relies on the socket keeping message
boundaries; use seqpacket sockets as created by [uds.NewSeqpacketPair].
*/
package gobmsg
