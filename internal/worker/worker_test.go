package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/nudge"
	"github.com/lalithlochan/tandem/internal/sns"
	"github.com/lalithlochan/tandem/internal/sqs"
)

type mockCycler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockCycler) RunCycle(ctx context.Context) (*nudge.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return nudge.NewSummary(time.Now()), nil
}

func (m *mockCycler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockReporter struct {
	reports []sns.Report
	err     error
}

func (m *mockReporter) PublishSummary(ctx context.Context, r sns.Report) (string, error) {
	m.reports = append(m.reports, r)
	return "msg", m.err
}

type mockQueue struct {
	deliveries []*sqs.Delivery
	receiveErr error
	deleted    []string
}

func (m *mockQueue) Receive(ctx context.Context) (*sqs.Delivery, error) {
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	if len(m.deliveries) == 0 {
		return nil, nil
	}
	d := m.deliveries[0]
	m.deliveries = m.deliveries[1:]
	return d, nil
}

func (m *mockQueue) Delete(ctx context.Context, receiptHandle string) error {
	m.deleted = append(m.deleted, receiptHandle)
	return nil
}

func TestRunner_ReportsSuccess(t *testing.T) {
	cycler := &mockCycler{}
	reporter := &mockReporter{}
	r := NewRunner(cycler, reporter, zap.NewNop())

	summary, err := r.Run(context.Background(), TriggerHTTP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary == nil {
		t.Fatal("expected a summary")
	}

	if len(reporter.reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reporter.reports))
	}
	got := reporter.reports[0]
	if got.Status != sns.StatusOK || got.Trigger != TriggerHTTP || got.Summary == nil {
		t.Errorf("unexpected report: %+v", got)
	}
}

func TestRunner_ReportsFailure(t *testing.T) {
	cycler := &mockCycler{err: errors.New("store unavailable")}
	reporter := &mockReporter{}
	r := NewRunner(cycler, reporter, zap.NewNop())

	if _, err := r.Run(context.Background(), TriggerTimer); err == nil {
		t.Fatal("expected cycle error")
	}

	got := reporter.reports[0]
	if got.Status != sns.StatusFailed || got.Error != "store unavailable" {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.Summary != nil {
		t.Errorf("failed cycle should carry no summary, got %v", got.Summary)
	}
}

func TestRunner_PublishFailureDoesNotFailCycle(t *testing.T) {
	r := NewRunner(&mockCycler{}, &mockReporter{err: errors.New("throttled")}, zap.NewNop())

	if _, err := r.Run(context.Background(), TriggerHTTP); err != nil {
		t.Fatalf("report failure leaked into cycle result: %v", err)
	}
}

func TestRunner_NilReporter(t *testing.T) {
	r := NewRunner(&mockCycler{}, nil, zap.NewNop())

	if _, err := r.Run(context.Background(), TriggerHTTP); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTrigger_Poll(t *testing.T) {
	tests := []struct {
		name        string
		delivery    *sqs.Delivery
		cycleErr    error
		wantCycles  int
		wantDeleted bool
	}{
		{
			name:        "scheduled event runs and acks",
			delivery:    &sqs.Delivery{MessageID: "m1", ReceiptHandle: "rh", Trigger: sqs.TriggerMessage{Source: "aws.events"}},
			wantCycles:  1,
			wantDeleted: true,
		},
		{
			name:        "malformed message dropped without a cycle",
			delivery:    &sqs.Delivery{MessageID: "m2", ReceiptHandle: "rh", Err: fmt.Errorf("%w: bad json", sqs.ErrMalformedMessage)},
			wantCycles:  0,
			wantDeleted: true,
		},
		{
			name:        "failed cycle left for redelivery",
			delivery:    &sqs.Delivery{MessageID: "m3", ReceiptHandle: "rh"},
			cycleErr:    errors.New("store unavailable"),
			wantCycles:  1,
			wantDeleted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycler := &mockCycler{err: tt.cycleErr}
			queue := &mockQueue{deliveries: []*sqs.Delivery{tt.delivery}}
			trigger := NewTrigger(queue, NewRunner(cycler, nil, zap.NewNop()), zap.NewNop())

			if err := trigger.poll(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cycler.count() != tt.wantCycles {
				t.Errorf("expected %d cycles, got %d", tt.wantCycles, cycler.count())
			}
			if deleted := len(queue.deleted) == 1; deleted != tt.wantDeleted {
				t.Errorf("expected deleted=%v, got %v", tt.wantDeleted, queue.deleted)
			}
		})
	}
}

func TestTrigger_PollEmpty(t *testing.T) {
	cycler := &mockCycler{}
	trigger := NewTrigger(&mockQueue{}, NewRunner(cycler, nil, zap.NewNop()), zap.NewNop())

	if err := trigger.poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cycler.count() != 0 {
		t.Error("empty poll should not run a cycle")
	}
}

func TestTrigger_StartStopsOnCancel(t *testing.T) {
	queue := &mockQueue{receiveErr: errors.New("connection refused")}
	trigger := NewTrigger(queue, NewRunner(&mockCycler{}, nil, zap.NewNop()), zap.NewNop())
	trigger.backoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		trigger.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("trigger did not stop after cancel")
	}
}

func TestWorker_RunsOnInterval(t *testing.T) {
	cycler := &mockCycler{}
	w := New(NewRunner(cycler, nil, zap.NewNop()), Config{Interval: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	w.Start(ctx)

	if cycler.count() == 0 {
		t.Fatal("expected at least one timer cycle")
	}
}
