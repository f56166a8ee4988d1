package app

import (
	"fmt"

	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/dkeye/StreamRelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Exporter receives every encoded notification after local fan-out.
// Implementations must not block.
type Exporter interface {
	Export(path domain.StreamPath, frame core.Frame)
}

// DeliveryResult reports fan-out stats for one event.
type DeliveryResult struct {
	Attempted int
	Delivered int
	Evicted   []domain.SubscriberID
}

// Dispatcher turns lifecycle events into frames and fans them out to a
// registry snapshot. Callers must not Publish two events of the same path
// concurrently; Orchestrator takes care of that.
type Dispatcher struct {
	registry *core.SubscriberRegistry
	policy   DeliveryPolicy
	exporter Exporter
	metrics  *metrics.Metrics
}

func NewDispatcher(registry *core.SubscriberRegistry, policy DeliveryPolicy, m *metrics.Metrics) *Dispatcher {
	if policy == nil {
		policy = SimplePolicy{}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Dispatcher{registry: registry, policy: policy, metrics: m}
}

// SetExporter must be called before the first Publish.
func (d *Dispatcher) SetExporter(e Exporter) { d.exporter = e }

// Publish delivers ev to every subscriber present at snapshot time, once.
// Failed subscribers are evicted; Publish itself never fails.
func (d *Dispatcher) Publish(ev core.Event) DeliveryResult {
	frame, err := core.Encode(ev)
	if err != nil {
		panic(fmt.Sprintf("app: encode %T: %v", ev, err))
	}
	n := ev.Notification()

	snap := d.registry.Snapshot()
	res := DeliveryResult{Attempted: len(snap)}
	for _, sub := range snap {
		if err := sub.TrySend(frame); err != nil {
			d.evict(sub, err)
			res.Evicted = append(res.Evicted, sub.ID())
			continue
		}
		res.Delivered++
	}

	d.metrics.NotificationsSent.WithLabelValues(n.Status).Inc()
	d.metrics.FramesDelivered.Add(float64(res.Delivered))
	d.metrics.DispatchFanoutLength.Observe(float64(res.Attempted))
	if d.exporter != nil {
		d.exporter.Export(n.Path, frame)
	}

	log.Debug().
		Str("module", "app.dispatcher").
		Str("path", string(n.Path)).
		Str("status", n.Status).
		Int("delivered", res.Delivered).
		Int("evicted", len(res.Evicted)).
		Msg("dispatch result")
	return res
}

// Direct sends a single message to one subscriber with the same failure
// handling as Publish. It reports whether the send was accepted.
func (d *Dispatcher) Direct(sub core.Subscriber, msg any) bool {
	frame, err := core.EncodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Msg("direct marshal")
		return false
	}
	if err := sub.TrySend(frame); err != nil {
		d.evict(sub, err)
		return false
	}
	d.metrics.FramesDelivered.Inc()
	return true
}

func (d *Dispatcher) evict(sub core.Subscriber, cause error) {
	d.metrics.DeliveryFailures.Inc()
	action := d.policy.OnDeliveryFailure(sub, cause)
	if d.registry.Remove(sub.ID()) {
		d.metrics.SubscribersEvicted.Inc()
	}
	d.metrics.Subscribers.Set(float64(d.registry.Len()))
	if action == EvictAndClose {
		sub.Close()
	}
	log.Warn().
		Err(cause).
		Str("module", "app.dispatcher").
		Str("subscriber", string(sub.ID())).
		Msg("delivery failed, subscriber evicted")
}
