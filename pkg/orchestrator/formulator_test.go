package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orb-labs/orchestrator/pkg/circuitbreaker"
	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
)

func testIntent() models.TransactionIntent {
	return models.TransactionIntent{ChainID: 10, To: "0xtarget", Data: "0xa9059cbb"}
}

// TestFormulateIneligibleIntent tests that pass-through intents are refused
func TestFormulateIneligibleIntent(t *testing.T) {
	routes := &mockRouteService{}
	f := NewFormulator(newTestStore(t), routes, nil, &logger.EmptyLogger{})

	tests := []struct {
		name   string
		intent models.TransactionIntent
	}{
		{name: "No call data", intent: models.TransactionIntent{ChainID: 1, Value: "0x1"}},
		{name: "Empty hex data", intent: models.TransactionIntent{ChainID: 1, Data: "0x"}},
		{name: "No chain id", intent: models.TransactionIntent{Data: "0xa9059cbb"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Formulate(context.Background(), "0xsender", tc.intent)
			assert.ErrorIs(t, err, ErrIntentNotEligible)
		})
	}
	assert.Equal(t, 0, routes.formulateCalls, "ineligible intents must not reach the route service")
}

// TestFormulateFlattensRoute tests the route-to-operation-list expansion
func TestFormulateFlattensRoute(t *testing.T) {
	st := newTestStore(t)
	routes := &mockRouteService{formulateResp: testRouteResponse()}
	f := NewFormulator(st, routes, nil, &logger.EmptyLogger{})

	plan, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.NoError(t, err)
	require.Len(t, plan.Operations, 3)
	assert.False(t, plan.CacheHit)

	// Supporting operations come first, in route order
	assert.Equal(t, models.KindApproveToken, plan.Operations[0].Kind)
	assert.Equal(t, models.KindSubmitIntent, plan.Operations[1].Kind)
	assert.Equal(t, models.KindFinalTransaction, plan.Operations[2].Kind)

	// Sender fills in a missing from address
	assert.Equal(t, "0xsender", plan.Operations[0].From)

	// Step input amounts annotate the supporting operations
	require.Len(t, plan.Operations[0].TokenAmounts, 1)
	assert.Equal(t, "1000000", plan.Operations[0].TokenAmounts[0].RawAmount)

	// Required state annotates the final transaction
	require.Len(t, plan.Operations[2].TokenAmounts, 1)
	assert.Equal(t, "995000", plan.Operations[2].TokenAmounts[0].RawAmount)

	// Every operation starts in INITIAL
	for _, op := range plan.Operations {
		assert.Equal(t, models.StatusInitial, op.Status)
	}

	// The plan is persisted under its request key
	stored, ok := st.Get(plan.RequestKey)
	require.True(t, ok)
	assert.Equal(t, plan.Operations, stored)
}

// TestFormulateFinalOnlyRoute tests a route with no supporting operations
func TestFormulateFinalOnlyRoute(t *testing.T) {
	routes := &mockRouteService{formulateResp: &routeclient.RouteResponse{
		Route:            []routeclient.RouteStep{{}},
		FinalTransaction: &routeclient.RouteOperation{ChainID: 10, To: "0xtarget", Data: "0xa9059cbb"},
	}}
	f := NewFormulator(newTestStore(t), routes, nil, &logger.EmptyLogger{})

	plan, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, models.KindFinalTransaction, plan.Operations[0].Kind)
}

// TestFormulateIdempotent tests that repeats of the same logical request are
// served from the store without a second route service call
func TestFormulateIdempotent(t *testing.T) {
	routes := &mockRouteService{formulateResp: testRouteResponse()}
	f := NewFormulator(newTestStore(t), routes, nil, &logger.EmptyLogger{})

	first, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.NoError(t, err)

	second, err := f.Formulate(context.Background(), "0xSENDER", testIntent())
	require.NoError(t, err)

	assert.Equal(t, first.RequestKey, second.RequestKey)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Operations, second.Operations)
	assert.Equal(t, 1, routes.formulateCalls, "identical intents must share one formulation")
}

// TestFormulateFailureLeavesStoreUntouched tests that a failed formulation
// does not persist anything, so the next attempt starts from scratch
func TestFormulateFailureLeavesStoreUntouched(t *testing.T) {
	st := newTestStore(t)
	routes := &mockRouteService{formulateErr: fmt.Errorf("no route found")}
	f := NewFormulator(st, routes, nil, &logger.EmptyLogger{})

	_, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.Error(t, err)
	assert.Equal(t, 0, st.Len())

	// A later successful attempt goes through the route service again
	routes.formulateErr = nil
	routes.formulateResp = testRouteResponse()
	plan, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.NoError(t, err)
	assert.False(t, plan.CacheHit)
	assert.Equal(t, 2, routes.formulateCalls)
}

// TestFormulateCircuitOpen tests that an open breaker short-circuits
// formulation before the route service is reached
func TestFormulateCircuitOpen(t *testing.T) {
	routes := &mockRouteService{formulateErr: fmt.Errorf("service down")}
	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Minute, &logger.EmptyLogger{})
	f := NewFormulator(newTestStore(t), routes, breaker, &logger.EmptyLogger{})

	_, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.Error(t, err)
	require.True(t, breaker.IsOpen())

	_, err = f.Formulate(context.Background(), "0xsender", testIntent())
	assert.ErrorIs(t, err, ErrRouteServiceUnavailable)
	assert.Equal(t, 1, routes.formulateCalls, "open circuit must not reach the route service")
}

// TestFormulateMalformedRoute tests that a route whose flattened list breaks
// the final-transaction invariant is rejected
func TestFormulateMalformedRoute(t *testing.T) {
	st := newTestStore(t)
	routes := &mockRouteService{formulateResp: &routeclient.RouteResponse{
		Route: []routeclient.RouteStep{{
			OnchainOperations: []routeclient.RouteOperation{
				{ChainID: 1, Kind: models.KindFinalTransaction},
			},
		}},
		FinalTransaction: &routeclient.RouteOperation{ChainID: 10},
	}}
	f := NewFormulator(st, routes, nil, &logger.EmptyLogger{})

	_, err := f.Formulate(context.Background(), "0xsender", testIntent())
	require.Error(t, err)
	assert.Equal(t, 0, st.Len())
}
