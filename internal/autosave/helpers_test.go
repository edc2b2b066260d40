package autosave_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/testutil"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const quiet = 2 * time.Second

// stubSaver 记录每次保存调用。gate 非空时每次调用都阻塞，直到从 gate 收到结果。
type stubSaver struct {
	mu      sync.Mutex
	calls   []json.RawMessage
	results []error
	gate    chan error
	started chan json.RawMessage

	inFlight    int32
	maxInFlight int32
}

func newStubSaver() *stubSaver {
	return &stubSaver{started: make(chan json.RawMessage, 64)}
}

func newGatedSaver() *stubSaver {
	s := newStubSaver()
	s.gate = make(chan error)
	return s
}

func (s *stubSaver) Save(_ context.Context, _ string, content json.RawMessage) error {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxInFlight, max, n) {
			break
		}
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	s.calls = append(s.calls, content)
	var err error
	if s.gate == nil && len(s.results) > 0 {
		err = s.results[0]
		s.results = s.results[1:]
	}
	s.mu.Unlock()

	s.started <- content
	if s.gate != nil {
		err = <-s.gate
	}
	return err
}

func (s *stubSaver) failNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, errs...)
}

func (s *stubSaver) Calls() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.calls))
	copy(out, s.calls)
	return out
}

// waitStarted 等待一次保存调用开始，并返回其内容。
func (s *stubSaver) waitStarted(t *testing.T) json.RawMessage {
	t.Helper()
	select {
	case c := <-s.started:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("save call was not issued")
		return nil
	}
}

// statusRecorder 收集状态变化事件。
type statusRecorder struct {
	mu     sync.Mutex
	events []autosave.StatusEvent
}

func (r *statusRecorder) listen(ev autosave.StatusEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *statusRecorder) Statuses() []autosave.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]autosave.Status, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Status)
	}
	return out
}

type fixture struct {
	clock  *testutil.FakeClock
	saver  *stubSaver
	rec    *statusRecorder
	engine *autosave.Engine
}

func newFixture(t *testing.T, saver *stubSaver, opts ...autosave.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock: testutil.NewFakeClock(t0),
		saver: saver,
		rec:   &statusRecorder{},
	}
	base := []autosave.Option{
		autosave.WithClock(f.clock),
		autosave.WithQuietPeriod(quiet),
		autosave.WithListener(f.rec.listen),
	}
	f.engine = autosave.NewEngine("chapter-1", json.RawMessage(`{"type":"doc"}`), saver, append(base, opts...)...)
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) edit(t *testing.T, content string) {
	t.Helper()
	_, err := f.engine.Edit(json.RawMessage(content))
	require.NoError(t, err)
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Wait(ctx))
}
