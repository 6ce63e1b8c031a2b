package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
	"github.com/orb-labs/orchestrator/pkg/store"
)

const testGasLimit = 300000

func newTestSubmitter(t *testing.T, routes *mockRouteService, signer *mockSigner) (*Submitter, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	reconciler := NewReconciler(st, routes, testPollInterval, 0, &logger.EmptyLogger{})
	t.Cleanup(reconciler.StopAll)
	return NewSubmitter(st, routes, signer, reconciler, testGasLimit, &logger.EmptyLogger{}), st
}

// TestSubmitSignsInOrderAndSubmits tests the happy path: sequential signing,
// supporting batch before final batch, and resolution through the watch
func TestSubmitSignsInOrderAndSubmits(t *testing.T) {
	routes := &mockRouteService{
		statusFn: func(_ int, ids []string) ([]routeclient.OperationStatusResult, error) {
			return allStatuses(ids, routeclient.ExternalSuccessful, "0xfinalhash"), nil
		},
	}
	signer := &mockSigner{}
	submitter, st := newTestSubmitter(t, routes, signer)

	require.NoError(t, st.Put("key1", storedTestOperations()))

	resolved := make(chan resolution, 1)
	err := submitter.Submit(context.Background(), "key1", func(success bool, txHash string) {
		resolved <- resolution{success: success, txHash: txHash}
	})
	require.NoError(t, err)

	// Signing happened strictly in list order with payload defaults applied
	payloads := signer.signedPayloads()
	require.Len(t, payloads, 3)
	assert.Equal(t, "0xtoken", payloads[0].To)
	assert.Equal(t, "0x0", payloads[0].Value, "missing value defaults to zero")
	assert.Equal(t, uint64(testGasLimit), payloads[0].GasLimit, "missing gas limit uses the default")
	assert.Equal(t, "0x1", payloads[1].Value)
	assert.Equal(t, uint64(250000), payloads[1].GasLimit, "explicit gas limit is kept")
	assert.Equal(t, int64(10), payloads[2].ChainID)

	// The supporting operations went out first, the final one on its own
	batches := routes.submittedBatches()
	require.Len(t, batches, 2)
	require.Len(t, batches[0], 2)
	assert.Equal(t, models.KindApproveToken, batches[0][0].Kind)
	assert.Equal(t, models.KindSubmitIntent, batches[0][1].Kind)
	require.Len(t, batches[1], 1)
	assert.Equal(t, models.KindFinalTransaction, batches[1][0].Kind)

	result := waitResolved(t, resolved)
	assert.True(t, result.success)
	assert.Equal(t, "0xfinalhash", result.txHash)

	// The resolved entry is evicted and the request is no longer in flight
	assert.Equal(t, 0, st.Len())
	assert.False(t, submitter.IsSubmitting("key1"))
}

// TestSubmitAllOrNothing tests that a signing failure aborts the whole
// request before anything reaches the network
func TestSubmitAllOrNothing(t *testing.T) {
	routes := &mockRouteService{}
	signer := &mockSigner{failAt: 2, failWith: ErrUserRejected}
	submitter, st := newTestSubmitter(t, routes, signer)

	require.NoError(t, st.Put("key1", storedTestOperations()))

	err := submitter.Submit(context.Background(), "key1", func(bool, string) {
		t.Error("onResolved must not fire for an aborted submission")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSigningAborted)
	assert.ErrorIs(t, err, ErrUserRejected)

	// Nothing was submitted, not even the operation signed before the failure
	assert.Empty(t, routes.submittedBatches())

	// Every operation is marked FAILED, including unsigned ones
	ops, ok := st.Get("key1")
	require.True(t, ok)
	for _, op := range ops {
		assert.Equal(t, models.StatusFailed, op.Status)
	}

	assert.False(t, submitter.IsSubmitting("key1"))
}

// TestSubmitRecordsSubmittedIDs tests that operation ids derived from the
// signed payloads are written back before submission
func TestSubmitRecordsSubmittedIDs(t *testing.T) {
	block := make(chan struct{})
	routes := &mockRouteService{
		statusFn: func(_ int, ids []string) ([]routeclient.OperationStatusResult, error) {
			<-block
			return allStatuses(ids, routeclient.ExternalSuccessful, "0xhash"), nil
		},
	}
	signer := &mockSigner{}
	submitter, st := newTestSubmitter(t, routes, signer)
	defer close(block)

	require.NoError(t, st.Put("key1", storedTestOperations()))
	require.NoError(t, submitter.Submit(context.Background(), "key1", func(bool, string) {}))

	ops, ok := st.Get("key1")
	require.True(t, ok)
	for i, op := range ops {
		assert.Equal(t, models.StatusSubmitting, op.Status)
		expected := models.OperationID(fmt.Sprintf("0xsigned%02d", i+1))
		assert.Equal(t, expected, op.SubmittedID, "submitted id must derive from the signed payload")
	}

	// Ids are distinct across operations
	assert.NotEqual(t, ops[0].SubmittedID, ops[1].SubmittedID)
	assert.NotEqual(t, ops[1].SubmittedID, ops[2].SubmittedID)
}

// TestSubmitAlreadyInFlight tests that a second submit for the same key is
// refused while the first is still being watched
func TestSubmitAlreadyInFlight(t *testing.T) {
	routes := &mockRouteService{
		statusFn: func(_ int, ids []string) ([]routeclient.OperationStatusResult, error) {
			// Never terminal: keep the watch alive
			return allStatuses(ids, routeclient.ExternalStatus("UNKNOWN"), ""), nil
		},
	}
	signer := &mockSigner{}
	submitter, st := newTestSubmitter(t, routes, signer)

	require.NoError(t, st.Put("key1", storedTestOperations()))
	require.NoError(t, submitter.Submit(context.Background(), "key1", func(bool, string) {}))
	require.True(t, submitter.IsSubmitting("key1"))

	err := submitter.Submit(context.Background(), "key1", func(bool, string) {})
	assert.ErrorIs(t, err, ErrAlreadySubmitting)
}

// TestSubmitMissingEntry tests submission of an unknown request key
func TestSubmitMissingEntry(t *testing.T) {
	submitter, _ := newTestSubmitter(t, &mockRouteService{}, &mockSigner{})

	err := submitter.Submit(context.Background(), "no-such-key", func(bool, string) {})
	assert.Error(t, err)
	assert.False(t, submitter.IsSubmitting("no-such-key"))
}

// TestSubmitInvalidPlan tests that a stored entry breaking the
// final-transaction invariant is refused
func TestSubmitInvalidPlan(t *testing.T) {
	submitter, st := newTestSubmitter(t, &mockRouteService{}, &mockSigner{})

	require.NoError(t, st.Put("key1", models.Operations{
		{ChainID: 1, Kind: models.KindApproveToken, Status: models.StatusInitial},
	}))

	err := submitter.Submit(context.Background(), "key1", func(bool, string) {})
	assert.Error(t, err)
	assert.False(t, submitter.IsSubmitting("key1"))
}

// TestSubmitCallFailureStillWatches tests that a failed submission call does
// not decide the outcome: the reconciler still learns it from the statuses
func TestSubmitCallFailureStillWatches(t *testing.T) {
	routes := &mockRouteService{
		submitErr: assert.AnError,
		statusFn: func(_ int, ids []string) ([]routeclient.OperationStatusResult, error) {
			return allStatuses(ids, routeclient.ExternalFailed, ""), nil
		},
	}
	signer := &mockSigner{}
	submitter, st := newTestSubmitter(t, routes, signer)

	require.NoError(t, st.Put("key1", storedTestOperations()))

	resolved := make(chan resolution, 1)
	err := submitter.Submit(context.Background(), "key1", func(success bool, txHash string) {
		resolved <- resolution{success: success, txHash: txHash}
	})
	require.NoError(t, err, "submission call failures are not submission failures")

	result := waitResolved(t, resolved)
	assert.False(t, result.success)
	assert.Empty(t, result.txHash)
	assert.Equal(t, 0, st.Len())
}
