package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/planboard/internal/billing"
)

// mockActivator fails the first failures calls, then succeeds.
type mockActivator struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	applied  []Activation
}

func (m *mockActivator) Activate(ctx context.Context, a Activation) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return nil, m.err
	}
	m.applied = append(m.applied, a)
	return &Subscription{StripeID: a.Remote.ID, UserID: a.UserID}, nil
}

func (m *mockActivator) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

type reconcilerMetrics struct {
	mu      sync.Mutex
	queue   int
	retries map[string]int
}

func (r *reconcilerMetrics) SetReconcilerQueue(n int) {
	r.mu.Lock()
	r.queue = n
	r.mu.Unlock()
}

func (r *reconcilerMetrics) IncReconcilerRetry(outcome string) {
	r.mu.Lock()
	if r.retries == nil {
		r.retries = map[string]int{}
	}
	r.retries[outcome]++
	r.mu.Unlock()
}

func activation(id string) Activation {
	return Activation{UserID: "u1", PlanID: "pro", Remote: billing.RemoteSubscription{ID: id, Status: billing.StatusActive}}
}

func TestReconciler_EnqueueDedupes(t *testing.T) {
	r := NewReconciler(&mockActivator{}, time.Hour, 3)

	r.Enqueue(activation("sub_1"))
	r.Enqueue(activation("sub_1"))
	r.Enqueue(activation("sub_2"))

	if got := r.Pending(); got != 2 {
		t.Fatalf("expected 2 pending, got %d", got)
	}
}

func TestReconciler_FlushRetries(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		err         error
		maxAttempts int
		flushes     int
		wantPending int
		wantApplied int
		wantOutcome string
	}{
		{"succeeds first try", 0, nil, 3, 1, 0, 1, "ok"},
		{"succeeds after failure", 1, errors.New("db down"), 3, 2, 0, 1, "ok"},
		{"still failing keeps pending", 5, errors.New("db down"), 3, 2, 1, 0, "error"},
		{"gives up after max attempts", 5, errors.New("db down"), 2, 2, 0, 0, "error"},
		{"conflict drops immediately", 5, ErrAlreadySubscribed, 3, 1, 0, 0, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockActivator{failures: tt.failures, err: tt.err}
			m := &reconcilerMetrics{}
			r := NewReconciler(store, time.Hour, tt.maxAttempts)
			r.SetMetrics(m)

			r.Enqueue(activation("sub_1"))
			for i := 0; i < tt.flushes; i++ {
				r.Flush(context.Background())
			}

			if got := r.Pending(); got != tt.wantPending {
				t.Errorf("expected %d pending, got %d", tt.wantPending, got)
			}
			if got := store.appliedCount(); got != tt.wantApplied {
				t.Errorf("expected %d applied, got %d", tt.wantApplied, got)
			}
			if m.retries[tt.wantOutcome] == 0 {
				t.Errorf("expected a %q retry outcome, got %v", tt.wantOutcome, m.retries)
			}
			if m.queue != tt.wantPending {
				t.Errorf("expected queue gauge %d, got %d", tt.wantPending, m.queue)
			}
		})
	}
}

func TestReconciler_StopDoesFinalFlush(t *testing.T) {
	store := &mockActivator{}
	r := NewReconciler(store, time.Hour, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	r.Enqueue(activation("sub_1"))
	r.Stop()
	r.Stop() // second call is a no-op

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}

	if got := store.appliedCount(); got != 1 {
		t.Fatalf("expected 1 activation after Stop, got %d", got)
	}
}

func TestReconciler_TimerFlush(t *testing.T) {
	store := &mockActivator{}
	r := NewReconciler(store, 20*time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	r.Enqueue(activation("sub_1"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.appliedCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected timer flush to apply the activation")
}
