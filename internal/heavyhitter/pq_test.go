package heavyhitter

import "testing"

func TestPushAndTop(t *testing.T) {
	pq := New(4)
	pq.Pushp(1, 100)
	pq.Pushp(2, 50)
	pq.Pushp(3, 10)
	pq.Pushp(4, 1)

	if pq.Size() != 4 {
		t.Fatalf("expected size 4, got %d", pq.Size())
	}
	if top := pq.Top(); top.Priority != 1 {
		t.Fatalf("expected min priority 1 at top, got %d", top.Priority)
	}
}

func TestRemoveIfExists(t *testing.T) {
	pq := New(4)
	pq.Pushp(1, 100)
	pq.Pushp(2, 50)

	if !pq.RemoveIfExists(1) {
		t.Fatalf("expected key 1 to be removed")
	}
	if pq.RemoveIfExists(1) {
		t.Fatalf("key 1 should no longer exist")
	}
	if pq.Size() != 1 {
		t.Fatalf("expected size 1 after removal, got %d", pq.Size())
	}
}

func TestPopReturnsMinimum(t *testing.T) {
	pq := New(4)
	pq.Pushp(1, 100)
	pq.Pushp(2, 50)
	pq.Pushp(3, 10)

	got := pq.Pop()
	if got.KeyHash != 3 || got.Priority != 10 {
		t.Fatalf("expected to pop key 3 with priority 10, got %+v", got)
	}
	if pq.Size() != 2 {
		t.Fatalf("expected size 2 after pop, got %d", pq.Size())
	}
}

func TestEachVisitsAllEntries(t *testing.T) {
	pq := New(4)
	want := map[uint64]int64{1: 100, 2: 50, 3: 10}
	for k, p := range want {
		pq.Pushp(k, p)
	}

	got := make(map[uint64]int64)
	pq.Each(func(e Entry) { got[e.KeyHash] = e.Priority })

	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for k, p := range want {
		if got[k] != p {
			t.Fatalf("entry %d: expected priority %d, got %d", k, p, got[k])
		}
	}
}

func TestUniqueKeysInvariant(t *testing.T) {
	pq := New(4)
	pq.Pushp(1, 10)
	pq.RemoveIfExists(1)
	pq.Pushp(1, 20)

	if pq.Size() != 1 {
		t.Fatalf("expected size 1, got %d", pq.Size())
	}
	if top := pq.Top(); top.Priority != 20 {
		t.Fatalf("expected updated priority 20, got %d", top.Priority)
	}
}
