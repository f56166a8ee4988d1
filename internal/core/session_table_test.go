package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const cam1 domain.StreamPath = "/live/cam1"

func TestPublishThenIdle(t *testing.T) {
	clock := newFakeClock()
	table := NewSessionTable(WithClock(clock.Now))
	start := clock.Now()

	s, changed, err := table.MarkPublishing(cam1, "pub-a")
	if err != nil {
		t.Fatalf("MarkPublishing: %v", err)
	}
	if !changed {
		t.Fatal("MarkPublishing on unseen path reported no change")
	}
	want := domain.StreamSession{
		Path:         cam1,
		State:        domain.StatePublishing,
		StartedAt:    start,
		PublisherID:  "pub-a",
		PublishCount: 1,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}

	got, err := table.Get(cam1)
	if err != nil || got.State != domain.StatePublishing {
		t.Fatalf("Get = %+v, %v; want publishing", got, err)
	}

	clock.Advance(90 * time.Second)
	s, d, err := table.MarkIdle(cam1, "pub-a")
	if err != nil {
		t.Fatalf("MarkIdle: %v", err)
	}
	if d != 90*time.Second {
		t.Errorf("duration = %v, want 90s", d)
	}
	want = domain.StreamSession{
		Path:         cam1,
		State:        domain.StateIdle,
		PublishCount: 1,
		LastEndedAt:  start.Add(90 * time.Second),
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("idle session mismatch (-want +got):\n%s", diff)
	}

	got, err = table.Get(cam1)
	if err != nil || got.State != domain.StateIdle {
		t.Fatalf("Get after idle = %+v, %v; want idle retained", got, err)
	}
}

func TestConcurrentDoublePublish(t *testing.T) {
	for round := 0; round < 20; round++ {
		table := NewSessionTable()
		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]error, 2)
		)
		for i, pub := range []domain.PublisherID{"A", "B"} {
			wg.Add(1)
			go func(i int, pub domain.PublisherID) {
				defer wg.Done()
				<-start
				_, _, results[i] = table.MarkPublishing(cam1, pub)
			}(i, pub)
		}
		close(start)
		wg.Wait()

		var ok, rejected int
		for _, err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyPublishing):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || rejected != 1 {
			t.Fatalf("round %d: ok=%d rejected=%d, want 1/1", round, ok, rejected)
		}
	}
}

func TestSecondPublisherRejectedWithoutOverwrite(t *testing.T) {
	table := NewSessionTable()
	if _, _, err := table.MarkPublishing(cam1, "A"); err != nil {
		t.Fatal(err)
	}
	s, _, err := table.MarkPublishing(cam1, "B")
	if !errors.Is(err, ErrAlreadyPublishing) {
		t.Fatalf("err = %v, want ErrAlreadyPublishing", err)
	}
	if s.PublisherID != "A" {
		t.Fatalf("publisher overwritten: %q", s.PublisherID)
	}
}

func TestSamePublisherRepeatIsNoChange(t *testing.T) {
	clock := newFakeClock()
	table := NewSessionTable(WithClock(clock.Now))
	first, _, _ := table.MarkPublishing(cam1, "A")
	clock.Advance(time.Second)

	again, changed, err := table.MarkPublishing(cam1, "A")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if changed {
		t.Fatal("repeat publish reported a change")
	}
	if !again.StartedAt.Equal(first.StartedAt) || again.PublishCount != 1 {
		t.Fatalf("repeat publish mutated session: %+v", again)
	}
}

func TestStaleUnpublish(t *testing.T) {
	table := NewSessionTable()
	table.MarkPublishing(cam1, "current")

	s, _, err := table.MarkIdle(cam1, "stale")
	if !errors.Is(err, ErrNotPublisher) {
		t.Fatalf("err = %v, want ErrNotPublisher", err)
	}
	if s.State != domain.StatePublishing || s.PublisherID != "current" {
		t.Fatalf("state changed by stale unpublish: %+v", s)
	}

	if _, _, err := table.MarkIdle(cam1, "current"); err != nil {
		t.Fatalf("MarkIdle: %v", err)
	}
	if _, _, err := table.MarkIdle(cam1, "current"); !errors.Is(err, ErrNotPublisher) {
		t.Fatalf("duplicate unpublish err = %v, want ErrNotPublisher", err)
	}
}

func TestUnknownPath(t *testing.T) {
	table := NewSessionTable()
	if _, err := table.Get("/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if _, _, err := table.MarkIdle("/nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkIdle err = %v, want ErrNotFound", err)
	}
}

func TestListAndLive(t *testing.T) {
	table := NewSessionTable()
	table.MarkPublishing("/live/b", "1")
	table.MarkPublishing("/live/a", "2")
	table.MarkPublishing("/live/c", "3")
	table.MarkIdle("/live/c", "3")

	var all, live []domain.StreamPath
	for _, s := range table.List() {
		all = append(all, s.Path)
	}
	for _, s := range table.Live() {
		live = append(live, s.Path)
	}
	if diff := cmp.Diff([]domain.StreamPath{"/live/a", "/live/b", "/live/c"}, all); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.StreamPath{"/live/a", "/live/b"}, live); diff != "" {
		t.Errorf("Live (-want +got):\n%s", diff)
	}
}
