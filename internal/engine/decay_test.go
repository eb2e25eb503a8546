package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

func TestAccessModDecreasesWithAccessCount(t *testing.T) {
	if accessMod(0) <= accessMod(10) {
		t.Errorf("expected accessMod to decrease as access count rises")
	}
}

func TestFeedbackModNoFeedback(t *testing.T) {
	if got := feedbackMod(storage.FeedbackRollup{}); got != 1.0 {
		t.Errorf("expected feedbackMod with no feedback to be 1.0, got %f", got)
	}
}

func TestFeedbackModAllUseful(t *testing.T) {
	got := feedbackMod(storage.FeedbackRollup{UsefulCount: 10})
	if math.Abs(got-0.5) > 0.001 {
		t.Errorf("expected feedbackMod(all useful) = 0.5, got %f", got)
	}
}

func TestEffectiveDecayDurableIsSlowerThanEphemeral(t *testing.T) {
	durable := effectiveDecay(0.02, 0.0, 0, storage.FeedbackRollup{}, types.DurabilityDurable)
	ephemeral := effectiveDecay(0.02, 0.0, 0, storage.FeedbackRollup{}, types.DurabilityEphemeral)
	if durable >= ephemeral {
		t.Errorf("expected durable decay (%f) to be slower than ephemeral (%f)", durable, ephemeral)
	}
}

func TestGraphFloorThresholds(t *testing.T) {
	cases := []struct {
		weight float64
		want   float64
	}{
		{0, graphFloorLow},
		{2.9, graphFloorLow},
		{3, graphFloorMid},
		{5.9, graphFloorMid},
		{6, graphFloorHigh},
		{100, graphFloorHigh},
	}
	for _, tc := range cases {
		if got := graphFloor(tc.weight); got != tc.want {
			t.Errorf("graphFloor(%f) = %f, want %f", tc.weight, got, tc.want)
		}
	}
}

func TestDecayOnePinnedSkipped(t *testing.T) {
	mem := &types.Memory{Importance: 0.8, Pinned: true, CreatedAt: time.Now().Add(-1000 * time.Hour)}
	got, skip := decayOne(mem, time.Now(), 0.02, 0, storage.FeedbackRollup{})
	if !skip || got != 0.8 {
		t.Errorf("expected pinned memory to be skipped unchanged, got %f skip=%v", got, skip)
	}
}

func TestDecayOnePermanentSkipped(t *testing.T) {
	mem := &types.Memory{Importance: 0.8, Durability: types.DurabilityPermanent, CreatedAt: time.Now().Add(-1000 * time.Hour)}
	got, skip := decayOne(mem, time.Now(), 0.02, 0, storage.FeedbackRollup{})
	if !skip || got != 0.8 {
		t.Errorf("expected permanent memory to be skipped unchanged, got %f skip=%v", got, skip)
	}
}

func TestDecayOneDecaysOverTime(t *testing.T) {
	now := time.Now()
	fresh := &types.Memory{Importance: 0.8, Durability: types.DurabilityDurable, CreatedAt: now}
	old := &types.Memory{Importance: 0.8, Durability: types.DurabilityDurable, CreatedAt: now.Add(-24 * 30 * time.Hour)}

	freshScore, _ := decayOne(fresh, now, 0.02, 0, storage.FeedbackRollup{})
	oldScore, _ := decayOne(old, now, 0.02, 0, storage.FeedbackRollup{})

	if oldScore >= freshScore {
		t.Errorf("expected older memory (%f) to have decayed below fresh memory (%f)", oldScore, freshScore)
	}
}

func TestDecayOneNeverBelowGraphFloor(t *testing.T) {
	now := time.Now()
	mem := &types.Memory{Importance: 0.01, Durability: types.DurabilityEphemeral, CreatedAt: now.Add(-24 * 365 * time.Hour)}

	got, _ := decayOne(mem, now, 0.5, 10, storage.FeedbackRollup{})

	if got < graphFloorHigh {
		t.Errorf("expected well-connected memory to be floored at %f, got %f", graphFloorHigh, got)
	}
}

func TestDecayManagerRunCountsStableAndDecayed(t *testing.T) {
	store := newMockMemoryStore()
	now := time.Now()

	pinned := &types.Memory{ID: "mem:pinned", Importance: 0.9, Pinned: true, CreatedAt: now}
	decaying := &types.Memory{ID: "mem:decaying", Importance: 0.9, Durability: types.DurabilityEphemeral, CreatedAt: now.Add(-24 * 60 * time.Hour)}
	superseded := &types.Memory{ID: "mem:superseded", Importance: 0.9, SupersededBy: "mem:pinned", CreatedAt: now.Add(-24 * 60 * time.Hour)}

	store.memories[pinned.ID] = pinned
	store.memories[decaying.ID] = decaying
	store.memories[superseded.ID] = superseded

	dm := NewDecayManager(0.05, store, nil, nil)
	result, err := dm.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Processed != 2 {
		t.Errorf("expected 2 processed (superseded skipped entirely), got %d", result.Processed)
	}
	if result.Decayed != 1 {
		t.Errorf("expected 1 decayed, got %d", result.Decayed)
	}
	if result.Stable != 1 {
		t.Errorf("expected 1 stable, got %d", result.Stable)
	}
	if store.memories["mem:decaying"].Importance >= 0.9 {
		t.Errorf("expected decaying memory's importance to have dropped, got %f", store.memories["mem:decaying"].Importance)
	}
}
