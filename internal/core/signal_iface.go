package core

import "github.com/dkeye/StreamRelay/internal/domain"

// Frame is an encoded text payload.
type Frame []byte

// Subscriber is the registry's view of a notification consumer.
// The transport adapter owns the connection; TrySend is the send capability
// and must not block on the network.
type Subscriber interface {
	ID() domain.SubscriberID
	TrySend(Frame) error
	Close()
}
