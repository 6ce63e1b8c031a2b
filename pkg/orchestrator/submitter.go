package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/metrics"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/store"
)

// Submitter signs and submits a formulated request. Signing is
// all-or-nothing: a failure on any operation marks the whole request FAILED
// and nothing reaches the network, since a partially executed multi-chain
// route could leave value stranded.
type Submitter struct {
	store           *store.Store
	routes          RouteService
	signer          Signer
	reconciler      *Reconciler
	defaultGasLimit uint64
	logger          logger.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewSubmitter creates a new submitter
func NewSubmitter(st *store.Store, routes RouteService, signer Signer, reconciler *Reconciler, defaultGasLimit uint64, log logger.Logger) *Submitter {
	return &Submitter{
		store:           st,
		routes:          routes,
		signer:          signer,
		reconciler:      reconciler,
		defaultGasLimit: defaultGasLimit,
		logger:          log,
		inFlight:        make(map[string]bool),
	}
}

// IsSubmitting reports whether a submission for the key is in flight,
// including the watch phase after the submission calls have been issued.
func (s *Submitter) IsSubmitting(requestKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[requestKey]
}

// Submit signs every operation of the request in list order, submits the
// supporting operations and then the final one, and hands the submitted ids
// to the reconciler. It returns once the submission calls have been issued;
// the outcome is delivered through onResolved. Operations targeting the same
// chain are signed strictly in order so account nonces stay sequential.
func (s *Submitter) Submit(ctx context.Context, requestKey string, onResolved ResolveFunc) error {
	s.mu.Lock()
	if s.inFlight[requestKey] {
		s.mu.Unlock()
		return ErrAlreadySubmitting
	}
	s.inFlight[requestKey] = true
	s.mu.Unlock()

	operations, ok := s.store.Get(requestKey)
	if !ok || len(operations) == 0 {
		s.clearInFlight(requestKey)
		return fmt.Errorf("no operations stored for request %s", requestKey)
	}

	if _, err := operations.FinalIndex(); err != nil {
		s.clearInFlight(requestKey)
		return fmt.Errorf("invalid operation list for request %s: %w", requestKey, err)
	}

	// One batched write before the first signature request so the UI shows
	// every operation in flight.
	if _, err := s.store.UpdateStatuses(requestKey, models.SubmittingStatuses(len(operations))); err != nil {
		s.clearInFlight(requestKey)
		return fmt.Errorf("failed to mark operations submitting: %w", err)
	}

	signed, err := s.signAll(ctx, requestKey, operations)
	if err != nil {
		// Abort the whole request; nothing has been submitted.
		if _, updateErr := s.store.UpdateStatuses(requestKey, models.FailedStatuses(len(operations))); updateErr != nil {
			s.logger.Error("Failed to mark operations failed for %s: %v", requestKey, updateErr)
		}
		s.clearInFlight(requestKey)
		metrics.SigningFailures.WithLabelValues(signingFailureReason(err)).Inc()
		return fmt.Errorf("%w: %w", ErrSigningAborted, err)
	}

	ids := make([]string, len(signed))
	statuses := make([]models.StatusUpdate, len(signed))
	for i, op := range signed {
		ids[i] = models.OperationID(op.SignedPayload)
		statuses[i] = models.StatusUpdate{Status: models.StatusSubmitting, SubmittedID: ids[i]}
	}
	if _, err := s.store.UpdateStatuses(requestKey, statuses); err != nil {
		s.logger.Error("Failed to record submitted ids for %s: %v", requestKey, err)
	}

	// The supporting batch goes first, then the final transaction as its own
	// batch. Neither call's result decides the outcome; the network accepts
	// operations independently and the reconciler observes what happened.
	supporting := signed[:len(signed)-1]
	if err := s.routes.SubmitOperations(ctx, supporting); err != nil {
		s.logger.Error("Supporting operation submission call failed for %s: %v", requestKey, err)
		metrics.SubmissionBatches.WithLabelValues("supporting", "error").Inc()
	} else if len(supporting) > 0 {
		metrics.SubmissionBatches.WithLabelValues("supporting", "ok").Inc()
	}

	final := signed[len(signed)-1:]
	if err := s.routes.SubmitOperations(ctx, final); err != nil {
		s.logger.Error("Final operation submission call failed for %s: %v", requestKey, err)
		metrics.SubmissionBatches.WithLabelValues("final", "error").Inc()
	} else {
		metrics.SubmissionBatches.WithLabelValues("final", "ok").Inc()
	}

	s.logger.Info("Submitted %d operations for %s, watching statuses", len(signed), requestKey)

	s.reconciler.Watch(requestKey, ids, func(success bool, txHash string) {
		s.clearInFlight(requestKey)
		onResolved(success, txHash)
	})

	return nil
}

// signAll requests a signature for each operation in list order. Each
// signature completes before the next request is issued.
func (s *Submitter) signAll(ctx context.Context, requestKey string, operations models.Operations) ([]models.SignedOperation, error) {
	signed := make([]models.SignedOperation, 0, len(operations))

	for i, op := range operations {
		gasLimit := op.GasLimit
		if gasLimit == 0 {
			gasLimit = s.defaultGasLimit
		}

		value := op.Value
		if value == "" {
			value = "0x0"
		}
		data := op.Data
		if data == "" {
			data = "0x"
		}

		payload := models.TxPayload{
			From:     op.From,
			To:       op.To,
			Value:    value,
			Data:     data,
			ChainID:  op.ChainID,
			GasLimit: gasLimit,
		}

		result, err := s.signer.SignTransaction(ctx, payload)
		if err != nil {
			s.logger.ErrorWithChain(op.ChainID, "Signing operation %d/%d of %s failed: %v", i+1, len(operations), requestKey, err)
			return nil, fmt.Errorf("sign operation %d: %w", i, err)
		}
		result.Kind = op.Kind
		result.ChainID = op.ChainID
		signed = append(signed, result)
	}

	return signed, nil
}

func (s *Submitter) clearInFlight(requestKey string) {
	s.mu.Lock()
	delete(s.inFlight, requestKey)
	s.mu.Unlock()
}

func signingFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, ErrDeviceDisconnected):
		return "device_disconnected"
	default:
		return "backend_error"
	}
}
