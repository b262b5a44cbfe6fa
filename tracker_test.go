package sealbox

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
)

func TestTracker_ObserveOnceThenDuplicate(t *testing.T) {
	tr := newTracker()
	email := &Email{ID: "em-1", Subject: "hello"}

	if !tr.observe(email) {
		t.Fatal("first observe() = false, want true")
	}
	if tr.observe(email) {
		t.Fatal("second observe() = true, want false")
	}
	if got := tr.count(); got != 1 {
		t.Errorf("count() = %d, want 1", got)
	}
}

func TestTracker_ObserveRace_ExactlyOneWinner(t *testing.T) {
	tr := newTracker()
	email := &Email{ID: "em-1"}

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.observe(email) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("observe() returned true %d times, want exactly 1", n)
	}
}

func TestTracker_SnapshotPreservesFirstObservedOrder(t *testing.T) {
	tr := newTracker()
	// Insert out of lexical order.
	for _, id := range []string{"em-3", "em-1", "em-2"} {
		tr.observe(&Email{ID: id})
	}

	snap := tr.snapshot()
	want := []string{"em-3", "em-1", "em-2"}
	for i, e := range snap {
		if e.ID != want[i] {
			t.Errorf("snapshot[%d].ID = %s, want %s", i, e.ID, want[i])
		}
	}
}

func TestTracker_LocalHash(t *testing.T) {
	tr := newTracker()

	// Empty set hashes the empty string.
	empty := sha256.Sum256([]byte(""))
	if got, want := tr.localHash(), base64.RawURLEncoding.EncodeToString(empty[:]); got != want {
		t.Errorf("empty localHash() = %s, want %s", got, want)
	}

	tr.observe(&Email{ID: "b"})
	tr.observe(&Email{ID: "a"})

	// Sorted, comma-joined, independent of arrival order.
	sum := sha256.Sum256([]byte("a,b"))
	if got, want := tr.localHash(), base64.RawURLEncoding.EncodeToString(sum[:]); got != want {
		t.Errorf("localHash() = %s, want %s", got, want)
	}
}

func TestTracker_HashIndependentOfArrivalOrder(t *testing.T) {
	a, b := newTracker(), newTracker()
	ids := []string{"em-1", "em-2", "em-3"}

	for _, id := range ids {
		a.observe(&Email{ID: id})
	}
	for i := len(ids) - 1; i >= 0; i-- {
		b.observe(&Email{ID: ids[i]})
	}

	if a.localHash() != b.localHash() {
		t.Error("localHash differs for the same set observed in different orders")
	}
}

func TestTracker_ForgetChangesHash(t *testing.T) {
	tr := newTracker()
	tr.observe(&Email{ID: "em-1"})
	tr.observe(&Email{ID: "em-2"})

	before := tr.localHash()
	tr.forget("em-1")
	if tr.localHash() == before {
		t.Error("localHash unchanged after forget")
	}
	if got := tr.count(); got != 1 {
		t.Errorf("count() = %d, want 1", got)
	}
	for _, e := range tr.snapshot() {
		if e.ID == "em-1" {
			t.Error("forgotten email still in snapshot")
		}
	}

	// Forgetting an unknown id is a no-op.
	tr.forget("em-404")
	if got := tr.count(); got != 1 {
		t.Errorf("count() after no-op forget = %d, want 1", got)
	}
}

func TestTracker_SeenIDsIsACopy(t *testing.T) {
	tr := newTracker()
	tr.observe(&Email{ID: "em-1"})

	seen := tr.seenIDs()
	seen["em-2"] = struct{}{}
	if tr.count() != 1 {
		t.Error("mutating seenIDs() result leaked into the tracker")
	}
}

func TestTracker_ManyEmails(t *testing.T) {
	tr := newTracker()
	for i := 0; i < 100; i++ {
		if !tr.observe(&Email{ID: fmt.Sprintf("em-%03d", i)}) {
			t.Fatalf("observe(em-%03d) = false", i)
		}
	}
	if got := tr.count(); got != 100 {
		t.Errorf("count() = %d, want 100", got)
	}
	if got := len(tr.snapshot()); got != 100 {
		t.Errorf("len(snapshot()) = %d, want 100", got)
	}
}
