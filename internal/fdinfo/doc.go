/*
Package fdinfo inspects open file descriptors of the current process via
procfs, such as for logging what kind of file descriptor has been received
from a peer.
*/
package fdinfo
