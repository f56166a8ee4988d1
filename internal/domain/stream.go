// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const MaxPathLen = 256

var (
	ErrPathEmpty   = errors.New("stream path empty")
	ErrPathTooLong = errors.New("stream path too long")
)

type (
	StreamPath  string
	PublisherID string
)

// NewStreamPath normalises an ingestion path to a leading-slash form ("/live/cam1").
func NewStreamPath(raw string) (StreamPath, error) {
	p := strings.TrimSpace(raw)
	if p == "" || p == "/" {
		return "", ErrPathEmpty
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > MaxPathLen {
		return "", ErrPathTooLong
	}
	return StreamPath(p), nil
}

type StreamState int

const (
	StateIdle StreamState = iota
	StatePublishing
)

func (s StreamState) String() string {
	switch s {
	case StatePublishing:
		return "publishing"
	default:
		return "idle"
	}
}

func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StreamState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "publishing":
		*s = StatePublishing
	case "idle":
		*s = StateIdle
	default:
		return fmt.Errorf("unknown stream state %q", b)
	}
	return nil
}

// StreamSession is a point-in-time copy of a path's state.
// StartedAt and PublisherID are only set while Publishing.
// PublisherID is what unpublish is checked against, so it never leaves the process.
type StreamSession struct {
	Path         StreamPath  `json:"path"`
	State        StreamState `json:"state"`
	StartedAt    time.Time   `json:"started_at,omitzero"`
	PublisherID  PublisherID `json:"-"`
	PublishCount int         `json:"publish_count"`
	LastEndedAt  time.Time   `json:"last_ended_at,omitzero"`
}

func (s StreamSession) IsLive() bool { return s.State == StatePublishing }
