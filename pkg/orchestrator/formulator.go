package orchestrator

import (
	"context"
	"fmt"

	"github.com/orb-labs/orchestrator/pkg/circuitbreaker"
	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/metrics"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
	"github.com/orb-labs/orchestrator/pkg/store"
)

// Plan is the result of a successful formulation.
type Plan struct {
	RequestKey string
	Operations models.Operations
	CacheHit   bool
}

// Formulator expands transaction intents into ordered operation plans,
// memoized by request key so re-renders and duplicate requests never
// re-invoke the route service.
type Formulator struct {
	store   *store.Store
	routes  RouteService
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

// NewFormulator creates a new formulator
func NewFormulator(st *store.Store, routes RouteService, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Formulator {
	return &Formulator{
		store:   st,
		routes:  routes,
		breaker: breaker,
		logger:  log,
	}
}

// Formulate returns the operation plan for the intent. A stored plan under
// the same request key is returned as-is; otherwise the route service is
// called once and the result is written to the store. Failures leave the
// store untouched so the caller can retry from scratch.
func (f *Formulator) Formulate(ctx context.Context, sender string, intent models.TransactionIntent) (*Plan, error) {
	if !intent.Eligible() {
		return nil, ErrIntentNotEligible
	}

	requestKey := models.ComputeRequestKey(intent.ChainID, sender, intent.To, intent.Data)

	if ops, ok := f.store.Get(requestKey); ok && len(ops) > 0 {
		f.logger.DebugWithChain(intent.ChainID, "Formulation cache hit for %s (%d operations)", requestKey, len(ops))
		metrics.FormulationCacheHits.Inc()
		return &Plan{RequestKey: requestKey, Operations: ops, CacheHit: true}, nil
	}

	if f.breaker != nil && f.breaker.IsOpen() {
		metrics.Formulations.WithLabelValues("circuit_open").Inc()
		return nil, ErrRouteServiceUnavailable
	}

	resp, err := f.routes.Formulate(ctx, sender, intent)
	if err != nil {
		if f.breaker != nil {
			f.breaker.RecordFailure()
		}
		metrics.Formulations.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("formulation failed: %w", err)
	}
	if f.breaker != nil {
		f.breaker.RecordSuccess()
	}

	operations, err := flattenRoute(sender, resp)
	if err != nil {
		metrics.Formulations.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("malformed route: %w", err)
	}

	if err := f.store.Put(requestKey, operations); err != nil {
		return nil, fmt.Errorf("failed to store operations: %w", err)
	}

	f.logger.InfoWithChain(intent.ChainID, "Formulated %d operations for %s", len(operations), requestKey)
	metrics.Formulations.WithLabelValues("success").Inc()
	metrics.OperationsFormulated.Observe(float64(len(operations)))

	return &Plan{RequestKey: requestKey, Operations: operations}, nil
}

// flattenRoute turns the route service response into the ordered operation
// list: supporting operations in route order, then exactly one final
// transaction built from the route's final details.
func flattenRoute(sender string, resp *routeclient.RouteResponse) (models.Operations, error) {
	var operations models.Operations

	for _, step := range resp.Route {
		var amounts []models.TokenAmount
		if step.InputToken != nil {
			amounts = []models.TokenAmount{{Token: *step.InputToken, RawAmount: step.InputAmount}}
		}

		for _, op := range step.OnchainOperations {
			operations = append(operations, routeOperation(sender, op, amounts))
		}
	}

	var finalAmounts []models.TokenAmount
	if resp.PreTransactionRequiredState != nil {
		finalAmounts = resp.PreTransactionRequiredState.TokenAmounts
	}
	final := routeOperation(sender, *resp.FinalTransaction, finalAmounts)
	final.Kind = models.KindFinalTransaction
	operations = append(operations, final)

	if _, err := operations.FinalIndex(); err != nil {
		return nil, err
	}

	return operations, nil
}

func routeOperation(sender string, op routeclient.RouteOperation, amounts []models.TokenAmount) models.Operation {
	from := op.From
	if from == "" {
		from = sender
	}
	return models.Operation{
		ChainID:      op.ChainID,
		From:         from,
		To:           op.To,
		Data:         op.Data,
		Value:        op.Value,
		GasLimit:     op.GasLimit,
		Kind:         op.Kind,
		TokenAmounts: amounts,
		Status:       models.StatusInitial,
	}
}
