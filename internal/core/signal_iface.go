package core

// Frame is one encoded protocol envelope.
type Frame []byte

// SignalConnection abstracts the relay's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
