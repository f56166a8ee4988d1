package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/dkeye/StreamRelay/internal/domain"
)

var errBroken = errors.New("broken pipe")

type recordingSubscriber struct {
	id     domain.SubscriberID
	broken bool

	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func newRecorder(id domain.SubscriberID) *recordingSubscriber {
	return &recordingSubscriber{id: id}
}

func (s *recordingSubscriber) ID() domain.SubscriberID { return s.id }

func (s *recordingSubscriber) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken || s.closed {
		return errBroken
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSubscriber) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// messages decodes every received frame into a generic map.
func (s *recordingSubscriber) messages(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.frames))
	for _, f := range s.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

// statuses returns "status path" for each stream_status frame, in arrival order.
func (s *recordingSubscriber) statuses(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range s.messages(t) {
		if m["type"] == core.NotificationType {
			out = append(out, m["status"].(string)+" "+m["path"].(string))
		}
	}
	return out
}

type captureExporter struct {
	mu     sync.Mutex
	paths  []domain.StreamPath
	frames []core.Frame
}

func (e *captureExporter) Export(path domain.StreamPath, f core.Frame) {
	e.mu.Lock()
	e.paths = append(e.paths, path)
	e.frames = append(e.frames, f)
	e.mu.Unlock()
}
