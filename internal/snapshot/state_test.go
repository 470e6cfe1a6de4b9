package snapshot

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/internal/measure"
)

func TestSetWeightTouchesOnlyWeight(t *testing.T) {
	store := NewStore()
	before, _ := store.Publish(measure.Measurement{WidthIn: 1.18, LengthIn: 0.1, Stage: calibration.Starter}, t0, "f.png", true)

	after, err := store.SetWeightFor(before.SnapshotID, 12.5)
	if err != nil {
		t.Fatal(err)
	}

	if after.WeightG == nil || *after.WeightG != 12.5 {
		t.Fatalf("weight = %v", after.WeightG)
	}
	after.WeightG = nil
	if after != before {
		t.Fatalf("SetWeight changed other fields:\n%+v\n%+v", before, after)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	published, _ := store.Publish(measure.Measurement{WidthIn: 1}, t0, "", false)
	if _, err := store.SetWeightFor(published.SnapshotID, 10); err != nil {
		t.Fatal(err)
	}
	snap := store.Snapshot()
	*snap.WeightG = 99

	if got := *store.Snapshot().WeightG; got != 10 {
		t.Fatalf("caller mutated store weight to %v", got)
	}
}

func TestMeasurement(t *testing.T) {
	store := NewStore()
	if _, _, _, ok := store.Measurement(); ok {
		t.Fatal("empty store reports a measurement")
	}
	store.Publish(measure.Measurement{WidthIn: 3.333, LengthIn: 1.005}, t0, "", false)
	id, w, l, ok := store.Measurement()
	if !ok || w != 3.33 || l != 1.0 {
		t.Fatalf("Measurement() = %v, %v, %v", w, l, ok)
	}
	if id == "" || id != store.Snapshot().SnapshotID {
		t.Fatalf("Measurement() snapshot id = %q, published %q", id, store.Snapshot().SnapshotID)
	}
}

func TestListenersSeeEveryChange(t *testing.T) {
	store := NewStore()
	var got []Change
	store.Subscribe(func(s PublishedState, c Change) {
		// Re-entrant reads must not deadlock
		_ = store.Snapshot()
		got = append(got, c)
	})

	published, _ := store.Publish(measure.Measurement{WidthIn: 1}, t0, "", false)
	if _, err := store.SetWeightFor(published.SnapshotID, 5); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || got[0] != ChangePublish || got[1] != ChangeWeight {
		t.Fatalf("changes = %v", got)
	}
}

func TestConcurrentWritersDoNotTear(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			w := float64(i)
			store.Publish(measure.Measurement{WidthIn: w, LengthIn: w}, t0.Add(time.Duration(i)), "", false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			id, _, _, _ := store.Measurement()
			// Losing the race to a newer publish is expected here
			_, _ = store.SetWeightFor(id, float64(i))
		}
	}()
	for i := 0; i < 200; i++ {
		s := store.Snapshot()
		if s.WidthIn != s.LengthIn {
			t.Fatalf("torn read: %+v", s)
		}
	}
	wg.Wait()
}

func TestSetWeightForRequiresSameSnapshot(t *testing.T) {
	store := NewStore()
	store.Publish(measure.Measurement{WidthIn: 1.18, LengthIn: 0.1, Stage: calibration.Starter}, t0, "", true)
	requested, _, _, _ := store.Measurement()

	store.Publish(measure.Measurement{WidthIn: 9.5, LengthIn: 3.2, Stage: calibration.Finisher}, t0.Add(4*time.Second), "", true)
	var changes []Change
	store.Subscribe(func(_ PublishedState, c Change) { changes = append(changes, c) })

	if _, err := store.SetWeightFor(requested, 152.347); !errors.Is(err, ErrSnapshotChanged) {
		t.Fatalf("SetWeightFor(stale id) error = %v, want ErrSnapshotChanged", err)
	}
	if w := store.Snapshot().WeightG; w != nil {
		t.Fatalf("weight written onto the newer fish: %v", *w)
	}
	if len(changes) != 0 {
		t.Fatalf("refused write notified listeners: %v", changes)
	}

	current, _, _, _ := store.Measurement()
	got, err := store.SetWeightFor(current, 200)
	if err != nil {
		t.Fatalf("SetWeightFor(current id): %v", err)
	}
	if got.WeightG == nil || *got.WeightG != 200 || got.Stage != calibration.Finisher {
		t.Fatalf("state after weight = %+v", got)
	}
}

func TestStageOmittedBeforeMeasurement(t *testing.T) {
	store := NewStore()
	data, err := json.Marshal(store.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var empty map[string]any
	if err := json.Unmarshal(data, &empty); err != nil {
		t.Fatal(err)
	}
	if _, ok := empty["stage"]; ok {
		t.Fatalf("empty state reports a stage: %s", data)
	}
	if empty["has_measurement"] != false {
		t.Fatalf("has_measurement = %v", empty["has_measurement"])
	}

	store.Publish(measure.Measurement{WidthIn: 1.18, LengthIn: 0.1, Stage: calibration.Starter}, t0, "", false)
	data, err = json.Marshal(store.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var measured map[string]any
	if err := json.Unmarshal(data, &measured); err != nil {
		t.Fatal(err)
	}
	if measured["stage"] != "Starter" || measured["width_in"] != 1.18 {
		t.Fatalf("measured state = %s", data)
	}
}

func TestRepublishingSameFishKeepsSnapshot(t *testing.T) {
	store := NewStore()
	m := measure.Measurement{WidthIn: 1.181, LengthIn: 0.1, Stage: calibration.Starter, Confidence: 0.93}
	store.Publish(m, t0, "", true)
	requested, _, _, _ := store.Measurement()

	// The same fish is still in view when the cooldown expires
	m.WidthIn = 1.179
	m.Confidence = 0.97
	republished, _ := store.Publish(m, t0.Add(3500*time.Millisecond), "", true)
	if republished.SnapshotID != requested {
		t.Fatalf("snapshot id changed on re-publish: %s -> %s", requested, republished.SnapshotID)
	}

	got, err := store.SetWeightFor(requested, 150)
	if err != nil {
		t.Fatalf("weight for the same fish rejected: %v", err)
	}
	if got.WeightG == nil || *got.WeightG != 150 || got.Confidence != 0.97 {
		t.Fatalf("state after weight = %+v", got)
	}

	again, cleared := store.Publish(m, t0.Add(7*time.Second), "", true)
	if cleared || again.WeightG == nil || *again.WeightG != 150 {
		t.Fatalf("re-publish of the same fish dropped its weight: cleared=%v %+v", cleared, again)
	}
}
