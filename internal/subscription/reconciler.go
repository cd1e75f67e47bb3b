package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Activator persists activations. *Store satisfies it.
type Activator interface {
	Activate(ctx context.Context, a Activation) (*Subscription, error)
}

// ReconcilerMetrics is an optional recorder for reconciler activity.
type ReconcilerMetrics interface {
	SetReconcilerQueue(n int)
	IncReconcilerRetry(outcome string)
}

type pendingActivation struct {
	activation Activation
	attempts   int
}

// Reconciler retries local activations whose remote subscription was
// created but whose database write failed. Pending work is keyed by the
// remote subscription id, so retrying is idempotent. It is safe for
// concurrent use.
type Reconciler struct {
	store       Activator
	mu          sync.Mutex
	pending     map[string]*pendingActivation
	interval    time.Duration
	maxAttempts int
	metrics     ReconcilerMetrics
	done        chan struct{}
	stopOnce    sync.Once
}

// NewReconciler creates a Reconciler that retries every interval and gives
// up on an activation after maxAttempts failures.
func NewReconciler(store Activator, interval time.Duration, maxAttempts int) *Reconciler {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Reconciler{
		store:       store,
		pending:     make(map[string]*pendingActivation),
		interval:    interval,
		maxAttempts: maxAttempts,
		done:        make(chan struct{}),
	}
}

// SetMetrics sets the optional metrics recorder.
func (r *Reconciler) SetMetrics(m ReconcilerMetrics) {
	r.metrics = m
}

// Start retries pending activations on a timer. It blocks until Stop is
// called or the context is cancelled, retrying once more before returning.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(ctx)
		case <-ctx.Done():
			r.Flush(context.Background())
			return
		case <-r.done:
			r.Flush(context.Background())
			return
		}
	}
}

// Enqueue schedules an activation for retry. A later activation for the
// same remote subscription replaces an earlier one.
func (r *Reconciler) Enqueue(a Activation) {
	r.mu.Lock()
	if existing, ok := r.pending[a.Remote.ID]; ok {
		existing.activation = a
	} else {
		r.pending[a.Remote.ID] = &pendingActivation{activation: a}
	}
	n := len(r.pending)
	r.mu.Unlock()

	r.reportQueue(n)
	slog.Warn("subscription activation queued for retry",
		"user_id", a.UserID, "plan_id", a.PlanID, "stripe_id", a.Remote.ID)
}

// Pending returns the number of activations waiting for retry.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush retries every pending activation once.
func (r *Reconciler) Flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	batch := make([]*pendingActivation, 0, len(r.pending))
	for _, p := range r.pending {
		batch = append(batch, p)
	}
	r.mu.Unlock()

	for _, p := range batch {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := r.store.Activate(attemptCtx, p.activation)
		cancel()

		r.mu.Lock()
		switch {
		case err == nil:
			delete(r.pending, p.activation.Remote.ID)
			r.incRetry("ok")
			slog.Info("subscription activation reconciled",
				"user_id", p.activation.UserID, "stripe_id", p.activation.Remote.ID)
		case errors.Is(err, ErrAlreadySubscribed):
			// Another live subscription won; retrying cannot succeed.
			delete(r.pending, p.activation.Remote.ID)
			r.incRetry("conflict")
			slog.Error("subscription activation conflicts with a live subscription",
				"user_id", p.activation.UserID, "stripe_id", p.activation.Remote.ID)
		default:
			p.attempts++
			r.incRetry("error")
			if p.attempts >= r.maxAttempts {
				delete(r.pending, p.activation.Remote.ID)
				slog.Error("giving up on subscription activation",
					"user_id", p.activation.UserID, "stripe_id", p.activation.Remote.ID,
					"attempts", p.attempts, "error", err)
			}
		}
		r.mu.Unlock()
	}

	r.reportQueue(r.Pending())
}

// Stop signals the background goroutine to exit after a final retry.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Reconciler) incRetry(outcome string) {
	if r.metrics != nil {
		r.metrics.IncReconcilerRetry(outcome)
	}
}

func (r *Reconciler) reportQueue(n int) {
	if r.metrics != nil {
		r.metrics.SetReconcilerQueue(n)
	}
}
