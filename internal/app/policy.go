package app

import "github.com/dkeye/StreamRelay/internal/core"

type FailureAction int

const (
	// EvictAndClose removes the subscriber and closes its transport so the
	// adapter's read loop ends.
	EvictAndClose FailureAction = iota
	// EvictOnly removes the subscriber and leaves the transport to its adapter.
	EvictOnly
)

// DeliveryPolicy decides what happens to a subscriber whose send failed.
// Either way the subscriber leaves the registry.
type DeliveryPolicy interface {
	OnDeliveryFailure(sub core.Subscriber, err error) FailureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFailure(core.Subscriber, error) FailureAction {
	return EvictAndClose
}
