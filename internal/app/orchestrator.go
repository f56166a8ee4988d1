package app

import (
	"errors"

	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/dkeye/StreamRelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the narrow contract ingestion and transport adapters call into.
// Lifecycle events of one path are handled strictly one at a time, table
// transition and dispatch together; different paths proceed concurrently.
// There is no global order across paths.
type Orchestrator struct {
	Sessions *core.SessionTable
	Registry *core.SubscriberRegistry
	Dispatch *Dispatcher
	Limiter  *PublishLimiter
	Metrics  *metrics.Metrics

	paths *core.KeyedMutex[domain.StreamPath]
}

func NewOrchestrator(
	sessions *core.SessionTable,
	registry *core.SubscriberRegistry,
	dispatch *Dispatcher,
	m *metrics.Metrics,
) *Orchestrator {
	if m == nil {
		m = dispatch.metrics
	}
	return &Orchestrator{
		Sessions: sessions,
		Registry: registry,
		Dispatch: dispatch,
		Metrics:  m,
		paths:    core.NewKeyedMutex[domain.StreamPath](),
	}
}

// OnPrePublish admits publisher on path. core.ErrAlreadyPublishing and
// ErrRateLimited are returned so the ingestion adapter can reject the connection.
// Only an Idle to Publishing transition is charged to the limiter.
func (o *Orchestrator) OnPrePublish(path domain.StreamPath, publisher domain.PublisherID) error {
	unlock := o.paths.Lock(path)
	defer unlock()

	if cur, err := o.Sessions.Get(path); err != nil || !cur.IsLive() {
		if !o.Limiter.Allow(path) {
			o.Metrics.PublishRejected.WithLabelValues("rate_limited").Inc()
			log.Info().Str("module", "app.orch").Str("path", string(path)).Str("publisher", string(publisher)).Msg("publish rate limited")
			return ErrRateLimited
		}
	}

	s, changed, err := o.Sessions.MarkPublishing(path, publisher)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyPublishing) {
			o.Metrics.PublishRejected.WithLabelValues("already_publishing").Inc()
			log.Info().
				Str("module", "app.orch").
				Str("path", string(path)).
				Str("publisher", string(publisher)).
				Str("current", string(s.PublisherID)).
				Msg("publish rejected, path busy")
		}
		return err
	}
	if !changed {
		return nil
	}

	o.Metrics.StreamsStarted.Inc()
	o.Metrics.ActiveStreams.Inc()
	log.Info().Str("module", "app.orch").Str("path", string(path)).Str("publisher", string(publisher)).Msg("stream started")
	o.Dispatch.Publish(core.NewStreamStarted(path, s.StartedAt))
	return nil
}

// OnDonePublish ends the publish. Stale or duplicate events are logged and dropped.
func (o *Orchestrator) OnDonePublish(path domain.StreamPath, publisher domain.PublisherID) {
	unlock := o.paths.Lock(path)
	defer unlock()

	s, d, err := o.Sessions.MarkIdle(path, publisher)
	switch {
	case errors.Is(err, core.ErrNotPublisher):
		o.Metrics.StaleUnpublishes.Inc()
		log.Warn().
			Str("module", "app.orch").
			Str("path", string(path)).
			Str("publisher", string(publisher)).
			Str("current", string(s.PublisherID)).
			Msg("stale unpublish ignored")
		return
	case errors.Is(err, core.ErrNotFound):
		o.Metrics.StaleUnpublishes.Inc()
		log.Warn().Str("module", "app.orch").Str("path", string(path)).Msg("unpublish for unknown path ignored")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "app.orch").Str("path", string(path)).Msg("unpublish")
		return
	}

	o.Metrics.StreamsEnded.Inc()
	o.Metrics.ActiveStreams.Dec()
	o.Metrics.StreamDuration.Observe(d.Seconds())
	log.Info().Str("module", "app.orch").Str("path", string(path)).Dur("duration", d).Msg("stream ended")
	o.Dispatch.Publish(core.NewStreamEnded(path, s.LastEndedAt, &d))
}

// OnSubscriberConnected registers sub and greets it with the live streams.
// A lifecycle event racing with the greeting may arrive first; the client
// sees the stream twice rather than not at all.
func (o *Orchestrator) OnSubscriberConnected(sub core.Subscriber) {
	if !o.Registry.Add(sub) {
		return
	}
	o.Metrics.Subscribers.Set(float64(o.Registry.Len()))
	log.Info().Str("module", "app.orch").Str("subscriber", string(sub.ID())).Msg("subscriber connected")
	o.Dispatch.Direct(sub, core.NewHello(sub.ID(), o.Sessions.Live()))
}

func (o *Orchestrator) OnSubscriberDisconnected(id domain.SubscriberID) {
	if o.Registry.Remove(id) {
		log.Info().Str("module", "app.orch").Str("subscriber", string(id)).Msg("subscriber disconnected")
	}
	o.Metrics.Subscribers.Set(float64(o.Registry.Len()))
}

func (o *Orchestrator) Streams() []domain.StreamSession {
	return o.Sessions.List()
}

func (o *Orchestrator) Stream(path domain.StreamPath) (domain.StreamSession, error) {
	return o.Sessions.Get(path)
}
