package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/metrics"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
	"github.com/orb-labs/orchestrator/pkg/store"
)

// DefaultPollInterval is the status poll cadence when none is configured.
const DefaultPollInterval = 6 * time.Second

// Reconciler polls the status service for submitted operations and maps the
// reported states onto the local per-operation state machine. Each watched
// request resolves exactly once.
type Reconciler struct {
	store    *store.Store
	routes   RouteService
	interval time.Duration
	// maxWatch bounds how long a request is polled. Zero polls until the
	// final operation resolves, matching the behavior users expect from an
	// already-sent transaction.
	maxWatch time.Duration
	logger   logger.Logger

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	requestKey string
	ids        []string
	stopChan   chan struct{}
	resolved   bool
	started    time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(st *store.Store, routes RouteService, interval, maxWatch time.Duration, log logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Reconciler{
		store:    st,
		routes:   routes,
		interval: interval,
		maxWatch: maxWatch,
		logger:   log,
		watches:  make(map[string]*watch),
	}
}

// Watch starts a polling loop for the submitted operation ids of a request.
// The final operation's id must be last. Watching an already-watched key is
// a no-op so duplicate submissions cannot double-resolve.
func (r *Reconciler) Watch(requestKey string, ids []string, onResolved ResolveFunc) {
	r.mu.Lock()
	if _, exists := r.watches[requestKey]; exists {
		r.mu.Unlock()
		r.logger.Debug("Already watching %s, ignoring duplicate watch", requestKey)
		return
	}

	w := &watch{
		requestKey: requestKey,
		ids:        ids,
		stopChan:   make(chan struct{}),
		started:    time.Now(),
	}
	r.watches[requestKey] = w
	r.mu.Unlock()

	metrics.ActiveWatches.Inc()
	go r.run(w, onResolved)
}

// ActiveWatches returns the number of requests currently being polled.
func (r *Reconciler) ActiveWatches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// StopAll halts every polling loop without resolving the requests. Entries
// stay in the store so watches can be restored after a reload.
func (r *Reconciler) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, w := range r.watches {
		if !w.resolved {
			close(w.stopChan)
			metrics.ActiveWatches.Dec()
		}
		delete(r.watches, key)
	}
}

// run is the polling loop of one watched request.
func (r *Reconciler) run(w *watch, onResolved ResolveFunc) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if r.maxWatch > 0 {
		timer := time.NewTimer(r.maxWatch)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-w.stopChan:
			return
		case <-deadline:
			r.logger.Error("Watch for %s exceeded %v without resolving, giving up", w.requestKey, r.maxWatch)
			if r.resolveOnce(w, false, "", "timeout") {
				onResolved(false, "")
			}
			return
		case <-ticker.C:
			if done := r.poll(w, onResolved); done {
				return
			}
		}
	}
}

// poll performs one status lookup cycle. It returns true when the request
// reached a terminal state and the watch must end.
func (r *Reconciler) poll(w *watch, onResolved ResolveFunc) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	results, err := r.routes.GetStatuses(ctx, w.ids)
	cancel()
	if err != nil {
		// A failed poll says nothing about the on-chain outcome. Leave the
		// statuses untouched and try again next tick.
		r.logger.Debug("Status poll for %s failed, will retry: %v", w.requestKey, err)
		metrics.StatusPolls.WithLabelValues("error").Inc()
		return false
	}
	metrics.StatusPolls.WithLabelValues("ok").Inc()

	batch := make([]models.StatusUpdate, len(results))
	for i, result := range results {
		batch[i] = models.StatusUpdate{Status: mapExternalStatus(result.Status), SubmittedID: w.ids[i]}
	}

	// Write only when something actually changed to avoid churning store
	// subscribers on every tick.
	if current, ok := r.store.Get(w.requestKey); ok && statusesChanged(current, batch) {
		if _, err := r.store.UpdateStatuses(w.requestKey, batch); err != nil {
			r.logger.Error("Failed to update statuses for %s: %v", w.requestKey, err)
		}
	}

	final := results[len(results)-1]
	switch final.Status {
	case routeclient.ExternalSuccessful, routeclient.ExternalPending:
		if r.resolveOnce(w, true, final.Hash, "success") {
			onResolved(true, final.Hash)
		}
		return true
	case routeclient.ExternalFailed:
		if r.resolveOnce(w, false, "", "failed") {
			onResolved(false, "")
		}
		return true
	}

	return false
}

// resolveOnce transitions the watch to resolved, stops bookkeeping and
// evicts the request entry. It returns true only for the first caller, so
// the completion callback can never fire twice.
func (r *Reconciler) resolveOnce(w *watch, success bool, txHash, result string) bool {
	r.mu.Lock()
	if w.resolved {
		r.mu.Unlock()
		return false
	}
	w.resolved = true
	delete(r.watches, w.requestKey)
	r.mu.Unlock()

	metrics.ActiveWatches.Dec()
	metrics.RequestsResolved.WithLabelValues(result).Inc()
	metrics.ResolutionTime.Observe(time.Since(w.started).Seconds())

	if err := r.store.Remove(w.requestKey); err != nil {
		r.logger.Error("Failed to remove resolved request %s: %v", w.requestKey, err)
	}

	if success {
		r.logger.Info("Request %s resolved successfully, final tx %s", w.requestKey, txHash)
	} else {
		r.logger.Notice("Request %s resolved as %s", w.requestKey, result)
	}
	return true
}

// mapExternalStatus collapses the status service's view onto the local
// state machine. PENDING counts as resolved for intermediate operations;
// only the final operation's state gates the overall request.
func mapExternalStatus(status routeclient.ExternalStatus) models.OperationStatus {
	switch status {
	case routeclient.ExternalSuccessful, routeclient.ExternalPending:
		return models.StatusSuccessful
	case routeclient.ExternalFailed:
		return models.StatusFailed
	default:
		return models.StatusSubmitting
	}
}

func statusesChanged(current models.Operations, batch []models.StatusUpdate) bool {
	if len(current) != len(batch) {
		return true
	}
	for i := range current {
		if current[i].Status != batch[i].Status {
			return true
		}
	}
	return false
}
