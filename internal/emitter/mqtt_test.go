package emitter

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/internal/config"
	"github.com/sfm/tilapia-camera/internal/measure"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, sent{topic, qos, retained, payload.([]byte)})
	return doneToken{err: b.err}
}

func (b *fakeBroker) messages() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sent(nil), b.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testEmitter(b *fakeBroker) *MQTTEmitter {
	e := NewMQTTEmitter(config.MQTTConfig{Topic: "tilapia/snapshot", QoS: 1})
	e.start(b)
	return e
}

func TestEmitterPublishesStoreChanges(t *testing.T) {
	broker := &fakeBroker{}
	e := testEmitter(broker)
	defer e.Close()

	store := snapshot.NewStore()
	store.Subscribe(e.Listener())
	published, _ := store.Publish(measure.Measurement{WidthIn: 1.18, LengthIn: 0.1, Stage: calibration.Starter}, time.Unix(0, 0), "frame.png", true)
	if _, err := store.SetWeightFor(published.SnapshotID, 42.5); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return e.Stats().Published == 2 })

	msgs := broker.messages()
	for _, m := range msgs {
		if m.topic != "tilapia/snapshot" || m.qos != 1 || !m.retained {
			t.Fatalf("message envelope = %+v", m)
		}
	}

	var first, second map[string]any
	if err := json.Unmarshal(msgs[0].payload, &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(msgs[1].payload, &second); err != nil {
		t.Fatal(err)
	}
	if first["change"] != "publish" || first["stage"] != "Starter" || first["width_in"] != 1.18 || first["weight_g"] != nil {
		t.Fatalf("publish payload = %v", first)
	}
	if second["change"] != "weight" || second["weight_g"] != 42.5 {
		t.Fatalf("weight payload = %v", second)
	}
	if st := e.Stats(); st.Published != 2 || st.Errors != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestEmitterCountsFailures(t *testing.T) {
	broker := &fakeBroker{err: errors.New("not authorized")}
	e := testEmitter(broker)
	defer e.Close()

	e.Enqueue(Message{Change: "publish"})
	waitFor(t, func() bool { return e.Stats().Errors == 1 })
	if e.Stats().Published != 0 {
		t.Fatal("failed publish counted as published")
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	e := NewMQTTEmitter(config.MQTTConfig{Topic: "t"})
	for i := 0; i < queueSize; i++ {
		if !e.Enqueue(Message{}) {
			t.Fatalf("enqueue %d rejected with room left", i)
		}
	}
	if e.Enqueue(Message{}) {
		t.Fatal("enqueue on a full queue succeeded")
	}
	if e.Stats().Dropped != 1 {
		t.Fatalf("dropped = %d", e.Stats().Dropped)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if e.Enqueue(Message{}) {
		t.Fatal("enqueue after Close succeeded")
	}
}

func TestMessageOmitsStageBeforeMeasurement(t *testing.T) {
	data, err := json.Marshal(Message{Change: "weight"})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if payload["change"] != "weight" || payload["has_measurement"] != false {
		t.Fatalf("payload = %v", payload)
	}
	if _, ok := payload["stage"]; ok {
		t.Fatalf("stage reported without a measurement: %s", data)
	}
}
