package realtime

import (
	"testing"
	"time"

	v1 "sparkwave/shared/contracts/realtime/v1"
)

func testEnvelope(t *testing.T, typ string) v1.Envelope {
	t.Helper()
	env, err := v1.NewEnvelope(typ, "", time.Now().UTC(), nil)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestRegistrySingleConnectionPerUser(t *testing.T) {
	reg := NewRegistry(nil)

	first := NewClient("u1", "s1", 8)
	second := NewClient("u1", "s2", 8)

	if got := reg.Bind(first); got != nil {
		t.Fatalf("first bind superseded %v", got)
	}
	if got := reg.Bind(second); got != first {
		t.Fatalf("second bind should supersede first, got %v", got)
	}
	if reg.Count() != 1 {
		t.Fatalf("count = %d, want 1", reg.Count())
	}
	if reg.Lookup("u1") != second {
		t.Fatal("live connection should be the second one")
	}
}

func TestRegistryUnbindGuardsStaleDisconnect(t *testing.T) {
	reg := NewRegistry(nil)

	first := NewClient("u1", "s1", 8)
	second := NewClient("u1", "s2", 8)

	reg.Bind(first)
	reg.Bind(second)

	// The superseded connection's late disconnect must not evict its successor.
	if reg.Unbind(first) {
		t.Fatal("stale unbind must report false")
	}
	if reg.Lookup("u1") != second {
		t.Fatal("successor was evicted by a stale unbind")
	}

	if !reg.Unbind(second) {
		t.Fatal("live unbind must report true")
	}
	if reg.Online("u1") {
		t.Fatal("user should be offline")
	}
}

func TestRegistryTryPush(t *testing.T) {
	reg := NewRegistry(nil)

	c := NewClient("u1", "s1", 1)
	reg.Bind(c)

	if reg.TryPush("nobody", testEnvelope(t, v1.TypeUserOnline)) {
		t.Fatal("push to offline user must report false")
	}
	if !reg.TryPush("u1", testEnvelope(t, v1.TypeUserOnline)) {
		t.Fatal("push to online user should succeed")
	}
	// Queue full: drop, never block.
	if reg.TryPush("u1", testEnvelope(t, v1.TypeUserOnline)) {
		t.Fatal("push into a full queue must drop")
	}

	c.Close()
	if reg.TryPush("u1", testEnvelope(t, v1.TypeUserOnline)) {
		t.Fatal("push to a closed client must report false")
	}
}

func TestRegistryBroadcastExcept(t *testing.T) {
	reg := NewRegistry(nil)

	a := NewClient("a", "s1", 8)
	b := NewClient("b", "s2", 8)
	c := NewClient("c", "s3", 8)
	reg.Bind(a)
	reg.Bind(b)
	reg.Bind(c)

	reg.BroadcastExcept("a", testEnvelope(t, v1.TypeUserOffline))

	if len(a.Send) != 0 {
		t.Fatal("excluded user must not receive the broadcast")
	}
	if len(b.Send) != 1 || len(c.Send) != 1 {
		t.Fatalf("b=%d c=%d, want 1 each", len(b.Send), len(c.Send))
	}
}

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Bind(NewClient("a", "s1", 8))
	reg.Bind(NewClient("b", "s2", 8))

	ids := reg.Snapshot()
	if len(ids) != 2 {
		t.Fatalf("snapshot = %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("snapshot = %v", ids)
	}
}
