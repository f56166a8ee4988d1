package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/StreamRelay/internal/domain"
)

type stubSubscriber struct {
	id domain.SubscriberID
}

func (s stubSubscriber) ID() domain.SubscriberID { return s.id }
func (s stubSubscriber) TrySend(Frame) error     { return nil }
func (s stubSubscriber) Close()                  {}

func ids(subs []Subscriber) []domain.SubscriberID {
	out := make([]domain.SubscriberID, len(subs))
	for i, s := range subs {
		out[i] = s.ID()
	}
	return out
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewSubscriberRegistry()
	if !r.Add(stubSubscriber{id: "a"}) {
		t.Fatal("first Add returned false")
	}
	if r.Add(stubSubscriber{id: "a"}) {
		t.Fatal("second Add of same id returned true")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryRemoveTwice(t *testing.T) {
	r := NewSubscriberRegistry()
	r.Add(stubSubscriber{id: "a"})
	if !r.Remove("a") {
		t.Fatal("first Remove returned false")
	}
	if r.Remove("a") {
		t.Fatal("second Remove returned true")
	}
	if r.Remove("never-added") {
		t.Fatal("Remove of unknown id returned true")
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestRegistrySnapshotJoinOrder(t *testing.T) {
	r := NewSubscriberRegistry()
	for _, id := range []domain.SubscriberID{"c", "a", "b"} {
		r.Add(stubSubscriber{id: id})
	}
	r.Remove("a")
	r.Add(stubSubscriber{id: "a"})

	got := ids(r.Snapshot())
	want := []domain.SubscriberID{"c", "b", "a"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Snapshot order = %v, want %v", got, want)
	}
}

func TestRegistrySnapshotIsDetached(t *testing.T) {
	r := NewSubscriberRegistry()
	r.Add(stubSubscriber{id: "a"})
	r.Add(stubSubscriber{id: "b"})

	snap := r.Snapshot()
	r.Remove("a")
	r.Add(stubSubscriber{id: "c"})

	if len(snap) != 2 || snap[0].ID() != "a" || snap[1].ID() != "b" {
		t.Fatalf("snapshot changed after mutation: %v", ids(snap))
	}
}

func TestRegistryConcurrentMutation(t *testing.T) {
	r := NewSubscriberRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.SubscriberID(fmt.Sprintf("sub-%d", i))
			r.Add(stubSubscriber{id: id})
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(id)
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 25 {
		t.Fatalf("Len = %d, want 25", r.Len())
	}
	if n := len(r.Snapshot()); n != 25 {
		t.Fatalf("Snapshot size = %d, want 25", n)
	}
}
