package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/StreamRelay/internal/domain"
)

const (
	NotificationType    = "stream_status"
	NotificationVersion = 1

	StatusStarted = "started"
	StatusEnded   = "ended"
)

// Event is a validated stream lifecycle transition.
type Event interface {
	StreamPath() domain.StreamPath
	Notification() Notification
}

type StreamStarted struct {
	Path      domain.StreamPath
	StartedAt time.Time
}

// StreamEnded carries the publish duration when it is known.
type StreamEnded struct {
	Path     domain.StreamPath
	EndedAt  time.Time
	Duration *time.Duration
}

// NewStreamStarted panics on a malformed event; callers build events from
// table transitions, so a bad one is a bug.
func NewStreamStarted(path domain.StreamPath, startedAt time.Time) StreamStarted {
	if path == "" {
		panic("core: StreamStarted with empty path")
	}
	if startedAt.IsZero() {
		panic("core: StreamStarted with zero start time")
	}
	return StreamStarted{Path: path, StartedAt: startedAt}
}

func NewStreamEnded(path domain.StreamPath, endedAt time.Time, duration *time.Duration) StreamEnded {
	if path == "" {
		panic("core: StreamEnded with empty path")
	}
	if endedAt.IsZero() {
		panic("core: StreamEnded with zero end time")
	}
	return StreamEnded{Path: path, EndedAt: endedAt, Duration: duration}
}

func (e StreamStarted) StreamPath() domain.StreamPath { return e.Path }
func (e StreamEnded) StreamPath() domain.StreamPath   { return e.Path }

func (e StreamStarted) Notification() Notification {
	return Notification{
		Type:      NotificationType,
		Version:   NotificationVersion,
		Status:    StatusStarted,
		Path:      e.Path,
		Timestamp: e.StartedAt.UnixMilli(),
	}
}

func (e StreamEnded) Notification() Notification {
	n := Notification{
		Type:      NotificationType,
		Version:   NotificationVersion,
		Status:    StatusEnded,
		Path:      e.Path,
		Timestamp: e.EndedAt.UnixMilli(),
	}
	if e.Duration != nil {
		ms := e.Duration.Milliseconds()
		n.DurationMS = &ms
	}
	return n
}

// Notification is the wire payload sent to subscribers.
type Notification struct {
	Type       string            `json:"type"`
	Version    int               `json:"version"`
	Status     string            `json:"status"`
	Path       domain.StreamPath `json:"path"`
	Timestamp  int64             `json:"timestamp"`
	DurationMS *int64            `json:"duration_ms,omitempty"`
}

func (n Notification) Encode() (Frame, error) {
	return json.Marshal(n)
}

// Encode renders ev once; the result is shared by every delivery.
func Encode(ev Event) (Frame, error) {
	return ev.Notification().Encode()
}
