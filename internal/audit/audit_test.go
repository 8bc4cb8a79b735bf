package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent() Event {
	return Event{
		ID:         "evt-1",
		Kind:       "ip_blocked",
		Severity:   "high",
		IP:         "203.0.113.5",
		Detail:     map[string]any{"failures": 5},
		DetectedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type fakeKafkaWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error { return nil }

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, nil)
	defer d.Close()

	for _, id := range []string{"a", "b", "c"} {
		e := sampleEvent()
		e.ID = id
		d.Emit(context.Background(), e)
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-sink.Events():
			if got.ID != want {
				t.Fatalf("expected %s, got %s", want, got.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{}, nil)
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), sampleEvent())
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	release := make(chan struct{})
	blocking := SinkFunc(func(context.Context, Event) { <-release })
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, blocking, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), sampleEvent())
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a stalled sink")
	}
	close(release)
	d.Close()
}

func TestDispatcherCloseDrains(t *testing.T) {
	var mu sync.Mutex
	var got int
	sink := SinkFunc(func(context.Context, Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink, nil)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), sampleEvent())
	}
	d.Close()
	mu.Lock()
	defer mu.Unlock()
	if got != 5 {
		t.Fatalf("expected 5 delivered events after close, got %d", got)
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var calls int
	var mu sync.Mutex
	sink := SinkFunc(func(context.Context, Event) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("boom")
		}
	})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, zap.New(core))
	d.Emit(context.Background(), sampleEvent())
	d.Emit(context.Background(), sampleEvent())
	d.Close()

	st := d.Stats()
	if st.Failed != 1 || st.Delivered != 1 {
		t.Fatalf("expected one failed and one delivered alert, got %+v", st)
	}
	if logs.FilterMessage("alert sink panicked").Len() != 1 {
		t.Fatalf("expected the panic to be logged")
	}
}

func TestDispatcherSinkGetsDeadline(t *testing.T) {
	deadlines := make(chan bool, 1)
	sink := SinkFunc(func(ctx context.Context, _ Event) {
		_, ok := ctx.Deadline()
		deadlines <- ok
	})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DeliveryTimeout: time.Second}, sink, nil)
	d.Emit(context.Background(), sampleEvent())
	d.Close()
	if !<-deadlines {
		t.Fatalf("expected delivery context with a deadline")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), sampleEvent())
	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json line %q: %v", line, err)
	}
	if decoded["kind"] != "ip_blocked" || decoded["severity"] != "high" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	NewLogSink(zap.New(core)).Emit(context.Background(), sampleEvent())
	entries := logs.FilterMessage("security alert").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["kind"] != "ip_blocked" {
		t.Fatalf("unexpected fields %v", entries[0].ContextMap())
	}
}

func TestWebhookSink(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var e Event
		if err := json.Unmarshal(body, &e); err != nil {
			t.Errorf("bad body: %v", err)
		}
		received <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	NewWebhookSink(srv.URL, time.Second, nil).Emit(context.Background(), sampleEvent())
	select {
	case e := <-received:
		if e.ID != "evt-1" {
			t.Fatalf("unexpected event %+v", e)
		}
	default:
		t.Fatal("webhook not called")
	}
}

func TestWebhookSinkLogsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.ErrorLevel)
	NewWebhookSink(srv.URL, time.Second, zap.New(core)).Emit(context.Background(), sampleEvent())
	if logs.FilterMessage("alert webhook delivery failed").Len() != 1 {
		t.Fatal("expected delivery failure to be logged")
	}
}

func TestKafkaSink(t *testing.T) {
	w := &fakeKafkaWriter{}
	NewKafkaSink(w, nil).Emit(context.Background(), sampleEvent())
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "203.0.113.5" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil || e.Kind != "ip_blocked" {
		t.Fatalf("unexpected value %s: %v", msg.Value, err)
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), sampleEvent())
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("every sink should receive the event")
	}
}
