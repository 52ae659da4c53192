package store

import (
	"sync"
	"testing"
	"time"

	"github.com/Velotales/antbridge/internal/ant"
	"github.com/Velotales/antbridge/internal/decode"
)

func TestUpsertFirstSeen(t *testing.T) {
	s := New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	bpm := uint8(70)
	r := decode.Reading{Profile: ant.ProfileHeartRate, HeartRate: &bpm}

	if first := s.Upsert(100, "Alice-HR", r, decode.Context{}, now); !first {
		t.Error("first upsert should report first=true")
	}
	if first := s.Upsert(100, "Alice-HR", r, decode.Context{}, now.Add(time.Second)); first {
		t.Error("second upsert should report first=false")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 device, got %d", s.Len())
	}
}

func TestUpsertStampsLastSeen(t *testing.T) {
	s := New()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Second)

	r := decode.Reading{Profile: ant.ProfilePower}
	s.Upsert(7, "Wattbike-Power", r, decode.Context{}, t0)
	first := s.Snapshot()[7].LastSeen

	// Same reading again: LastSeen must still advance.
	s.Upsert(7, "Wattbike-Power", r, decode.Context{}, t1)
	second := s.Snapshot()[7].LastSeen

	if second-first < 1.9 || second-first > 2.1 {
		t.Errorf("expected LastSeen to advance by ~2s, got %f", second-first)
	}
}

func TestContextRoundTrip(t *testing.T) {
	s := New()
	if ctx := s.Context(55); ctx.Baselined {
		t.Error("unseen device should have zero context")
	}

	ctx := decode.Context{Baselined: true, EventTimeTicks: 1234, RevolutionCount: 9}
	s.Upsert(55, "Bob-Speed", decode.Reading{Profile: ant.ProfileSpeed}, ctx, time.Now())

	got := s.Context(55)
	if !got.Baselined || got.EventTimeTicks != 1234 || got.RevolutionCount != 9 {
		t.Errorf("context not preserved: %+v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Upsert(1, "a", decode.Reading{}, decode.Context{}, time.Now())

	snap := s.Snapshot()
	delete(snap, 1)

	if s.Len() != 1 {
		t.Error("mutating a snapshot must not affect the store")
	}
}

func TestConcurrentUpserts(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Upsert(id, "dev", decode.Reading{}, decode.Context{}, time.Now())
				s.Snapshot()
			}
		}(uint32(i))
	}
	wg.Wait()

	if s.Len() != 8 {
		t.Errorf("expected 8 devices, got %d", s.Len())
	}
}
