package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"slotengine/internal/service/scheduling"
)

type fakeTasks struct {
	extend      atomic.Int32
	materialize atomic.Int32
	audit       atomic.Int32
	repair      atomic.Int32
	extendErr   error
}

func (f *fakeTasks) Extend(ctx context.Context) (int, error) {
	f.extend.Add(1)
	return 3, f.extendErr
}

func (f *fakeTasks) MaterializeAll(ctx context.Context) (int, error) {
	f.materialize.Add(1)
	return 0, nil
}

func (f *fakeTasks) CheckConsistency(ctx context.Context) (scheduling.AuditReport, error) {
	f.audit.Add(1)
	return scheduling.AuditReport{
		IsConsistent: false,
		Issues:       []scheduling.ConsistencyWarning{{Type: scheduling.IssueInvalidStatus, Critical: true, Message: "legacy"}},
	}, nil
}

func (f *fakeTasks) RepairOrphans(ctx context.Context) (scheduling.RepairReport, error) {
	f.repair.Add(1)
	return scheduling.RepairReport{RulesDeleted: 1}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_EnablesOnlyConfiguredJobs(t *testing.T) {
	s, err := New(&fakeTasks{}, Config{ExtendSpec: "@every 1h", AuditSpec: "0 3 * * *"}, discardLogger())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	got := s.Jobs()
	if len(got) != 2 || got[0] != "audit" || got[1] != "extend" {
		t.Fatalf("Jobs = %v", got)
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	if _, err := New(&fakeTasks{}, Config{ExtendSpec: "every now and then"}, discardLogger()); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestRunJob_CallsTasks(t *testing.T) {
	tasks := &fakeTasks{extendErr: errors.New("db down")}
	s, err := New(tasks, Config{ExtendSpec: "@hourly", MaterializeSpec: "@hourly", AuditSpec: "@daily", RepairSpec: "@weekly"}, discardLogger())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for _, name := range s.Jobs() {
		s.runJob(name, s.jobs[name])
	}
	if tasks.extend.Load() != 1 || tasks.materialize.Load() != 1 || tasks.audit.Load() != 1 || tasks.repair.Load() != 1 {
		t.Fatalf("calls extend=%d materialize=%d audit=%d repair=%d",
			tasks.extend.Load(), tasks.materialize.Load(), tasks.audit.Load(), tasks.repair.Load())
	}
}

func TestRun_FiresAndStopsWithContext(t *testing.T) {
	tasks := &fakeTasks{}
	s, err := New(tasks, Config{ExtendSpec: "@every 1s"}, discardLogger())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for tasks.extend.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("extend job never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
