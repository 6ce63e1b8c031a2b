package orchestrator

import (
	"context"

	"github.com/orb-labs/orchestrator/pkg/circuitbreaker"
	"github.com/orb-labs/orchestrator/pkg/config"
	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/metrics"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/store"
)

// Service is the orchestration facade handed to the request UI: formulate a
// plan, submit it after user approval, or reject it.
type Service struct {
	store      *store.Store
	formulator *Formulator
	submitter  *Submitter
	reconciler *Reconciler
	breaker    *circuitbreaker.CircuitBreaker
	logger     logger.Logger
}

// NewService wires the orchestration core from its collaborators.
func NewService(cfg *config.Config, st *store.Store, routes RouteService, signer Signer, log logger.Logger) *Service {
	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
		log,
	)

	reconciler := NewReconciler(st, routes, cfg.PollInterval, cfg.WatchTimeout, log)
	formulator := NewFormulator(st, routes, breaker, log)
	submitter := NewSubmitter(st, routes, signer, reconciler, cfg.DefaultGasLimit, log)

	st.Subscribe(func() {
		metrics.StoreEntries.Set(float64(st.Len()))
	})
	metrics.StoreEntries.Set(float64(st.Len()))

	return &Service{
		store:      st,
		formulator: formulator,
		submitter:  submitter,
		reconciler: reconciler,
		breaker:    breaker,
		logger:     log,
	}
}

// Formulate expands the intent into an operation plan, serving repeats of
// the same logical request from the store.
func (s *Service) Formulate(ctx context.Context, sender string, intent models.TransactionIntent) (*Plan, error) {
	return s.formulator.Formulate(ctx, sender, intent)
}

// Submit signs and submits the stored plan for the key and watches it until
// terminal. onResolved fires exactly once with the final transaction hash,
// or an empty hash on failure.
func (s *Service) Submit(ctx context.Context, requestKey string, onResolved ResolveFunc) error {
	return s.submitter.Submit(ctx, requestKey, onResolved)
}

// IsSubmitting reports whether the request is being signed, submitted or
// watched.
func (s *Service) IsSubmitting(requestKey string) bool {
	return s.submitter.IsSubmitting(requestKey)
}

// Reject drops the stored plan before submission. After submission it only
// detaches the caller's interest: the operations are already on the network,
// so polling continues until their outcome is recorded.
func (s *Service) Reject(requestKey string) error {
	if s.submitter.IsSubmitting(requestKey) {
		s.logger.Notice("Reject for in-flight request %s: polling continues until resolution", requestKey)
		return nil
	}
	return s.store.Remove(requestKey)
}

// RestoreWatches reattaches polling loops for requests that were submitted
// before a reload. Entries whose operations all carry a submitted id were
// handed to the network already and must not be re-signed or re-submitted.
func (s *Service) RestoreWatches(onResolved ResolveFunc) int {
	restored := 0
	for _, key := range s.store.Keys() {
		ops, ok := s.store.Get(key)
		if !ok || len(ops) == 0 {
			continue
		}

		ids := make([]string, 0, len(ops))
		submitted := true
		for _, op := range ops {
			if op.SubmittedID == "" || op.Status == models.StatusInitial || op.Status == models.StatusFailed {
				submitted = false
				break
			}
			ids = append(ids, op.SubmittedID)
		}
		if !submitted {
			continue
		}

		s.logger.Info("Restoring watch for %s (%d operations)", key, len(ids))
		s.reconciler.Watch(key, ids, onResolved)
		restored++
	}
	return restored
}

// ActiveWatches returns the number of requests currently being polled.
func (s *Service) ActiveWatches() int {
	return s.reconciler.ActiveWatches()
}

// Breaker exposes the route service circuit breaker for health reporting.
func (s *Service) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// Store returns the operation store.
func (s *Service) Store() *store.Store {
	return s.store
}

// Stop halts all polling loops without resolving requests.
func (s *Service) Stop() {
	s.reconciler.StopAll()
}
