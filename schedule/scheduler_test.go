package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
	"github.com/xraph/weave/store/memory"
)

type fakeTrigger struct {
	mu       sync.Mutex
	fired    []id.WorkflowID
	payloads []map[string]any
	ch       chan id.EventID
	err      error
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{ch: make(chan id.EventID, 16)}
}

func (f *fakeTrigger) fire(_ context.Context, workflowID id.WorkflowID, initialData map[string]any) (id.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return id.ID{}, f.err
	}
	eventID := id.NewEventID()
	f.fired = append(f.fired, workflowID)
	f.payloads = append(f.payloads, initialData)
	f.ch <- eventID
	return eventID, nil
}

func (f *fakeTrigger) lastPayload() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

type recordingEmitter struct {
	mu     sync.Mutex
	firing []string
}

func (e *recordingEmitter) EmitScheduleFired(_ context.Context, entryName string, _ id.EventID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.firing = append(e.firing, entryName)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEntry(name string) *schedule.Entry {
	return &schedule.Entry{
		Entity:     weave.NewEntity(),
		ID:         id.NewScheduleID(),
		Name:       name,
		Expr:       "@every 1h",
		WorkflowID: id.NewWorkflowID(),
		Enabled:    true,
	}
}

func TestRegisterComputesNextRun(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	s := schedule.NewScheduler(store, newFakeTrigger().fire, nil, id.NewWorkerID(), discardLogger())

	entry := newEntry("hourly")
	if err := s.Register(context.Background(), entry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if entry.NextRunAt == nil {
		t.Fatal("NextRunAt not computed")
	}
	if !entry.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("NextRunAt = %v, want future", entry.NextRunAt)
	}
}

func TestRegisterRejectsBadExpression(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	s := schedule.NewScheduler(store, newFakeTrigger().fire, nil, id.NewWorkerID(), discardLogger())

	entry := newEntry("broken")
	entry.Expr = "not a cron expr"
	if err := s.Register(context.Background(), entry); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDueEntryFires(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	trigger := newFakeTrigger()
	emitter := &recordingEmitter{}
	s := schedule.NewScheduler(store, trigger.fire, emitter, id.NewWorkerID(), discardLogger(),
		schedule.WithTickInterval(10*time.Millisecond),
	)

	entry := newEntry("due-now")
	if err := s.Register(context.Background(), entry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	entry.NextRunAt = &past
	if err := store.UpdateScheduleEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpdateScheduleEntry: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	select {
	case <-trigger.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not fire")
	}

	// The firing persists its bookkeeping after the trigger returns.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.GetSchedule(context.Background(), entry.ID)
		if err != nil {
			t.Fatalf("GetSchedule: %v", err)
		}
		if got.LastRunAt != nil && got.NextRunAt != nil && got.NextRunAt.After(time.Now().UTC()) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry bookkeeping not updated: last=%v next=%v", got.LastRunAt, got.NextRunAt)
		}
		time.Sleep(5 * time.Millisecond)
	}

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.firing) == 0 || emitter.firing[0] != "due-now" {
		t.Errorf("emitter firings = %v, want [due-now]", emitter.firing)
	}
}

func TestFiredPayloadNamespacedUnderSchedule(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	trigger := newFakeTrigger()
	s := schedule.NewScheduler(store, trigger.fire, nil, id.NewWorkerID(), discardLogger(),
		schedule.WithTickInterval(10*time.Millisecond),
	)

	entry := newEntry("digest")
	entry.InitialData = map[string]any{"report": "weekly"}
	if err := s.Register(context.Background(), entry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	entry.NextRunAt = &past
	if err := store.UpdateScheduleEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpdateScheduleEntry: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	select {
	case <-trigger.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not fire")
	}

	// Templates address the entry data as {{schedule.*}}, like the
	// webhook namespaces {{googleForm.*}} and {{stripe.*}}.
	payload := trigger.lastPayload()
	nested, ok := payload["schedule"].(map[string]any)
	if !ok {
		t.Fatalf("payload not nested under \"schedule\": %+v", payload)
	}
	if nested["report"] != "weekly" {
		t.Errorf("nested payload = %+v, want report=weekly", nested)
	}
}

func TestDisabledEntryDoesNotFire(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	trigger := newFakeTrigger()
	s := schedule.NewScheduler(store, trigger.fire, nil, id.NewWorkerID(), discardLogger(),
		schedule.WithTickInterval(10*time.Millisecond),
	)

	entry := newEntry("disabled")
	if err := s.Register(context.Background(), entry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	entry.NextRunAt = &past
	entry.Enabled = false
	if err := store.UpdateScheduleEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpdateScheduleEntry: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if trigger.count() != 0 {
		t.Errorf("disabled entry fired %d times", trigger.count())
	}
}

func TestFutureEntryDoesNotFire(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	trigger := newFakeTrigger()
	s := schedule.NewScheduler(store, trigger.fire, nil, id.NewWorkerID(), discardLogger(),
		schedule.WithTickInterval(10*time.Millisecond),
	)

	if err := s.Register(context.Background(), newEntry("later")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if trigger.count() != 0 {
		t.Errorf("future entry fired %d times", trigger.count())
	}
}

func TestLockedEntrySkipped(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	trigger := newFakeTrigger()
	s := schedule.NewScheduler(store, trigger.fire, nil, id.NewWorkerID(), discardLogger(),
		schedule.WithTickInterval(10*time.Millisecond),
	)

	entry := newEntry("contended")
	if err := s.Register(context.Background(), entry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	entry.NextRunAt = &past
	if err := store.UpdateScheduleEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpdateScheduleEntry: %v", err)
	}

	// Another instance holds the firing lock.
	other := id.NewWorkerID()
	acquired, err := store.AcquireScheduleLock(context.Background(), entry.ID, other, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("AcquireScheduleLock: acquired=%v err=%v", acquired, err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if trigger.count() != 0 {
		t.Errorf("locked entry fired %d times", trigger.count())
	}
}
