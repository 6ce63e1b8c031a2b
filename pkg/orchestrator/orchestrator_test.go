package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
	"github.com/orb-labs/orchestrator/pkg/store"
)

// testPollInterval keeps reconciler-driven tests fast.
const testPollInterval = 10 * time.Millisecond

// resolveTimeout bounds how long tests wait for a watch to resolve.
const resolveTimeout = 2 * time.Second

// mockRouteService is a test double for the external route service
type mockRouteService struct {
	mu sync.Mutex

	formulateCalls int
	formulateResp  *routeclient.RouteResponse
	formulateErr   error

	submitted [][]models.SignedOperation
	submitErr error

	statusCalls int
	statusFn    func(call int, ids []string) ([]routeclient.OperationStatusResult, error)
}

func (m *mockRouteService) Formulate(_ context.Context, _ string, _ models.TransactionIntent) (*routeclient.RouteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formulateCalls++
	if m.formulateErr != nil {
		return nil, m.formulateErr
	}
	return m.formulateResp, nil
}

func (m *mockRouteService) SubmitOperations(_ context.Context, operations []models.SignedOperation) error {
	if len(operations) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]models.SignedOperation, len(operations))
	copy(batch, operations)
	m.submitted = append(m.submitted, batch)
	return m.submitErr
}

func (m *mockRouteService) GetStatuses(_ context.Context, ids []string) ([]routeclient.OperationStatusResult, error) {
	m.mu.Lock()
	m.statusCalls++
	call := m.statusCalls
	fn := m.statusFn
	m.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("no status function configured")
	}
	return fn(call, ids)
}

func (m *mockRouteService) submittedBatches() [][]models.SignedOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]models.SignedOperation, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// allStatuses builds an index-aligned status answer with every operation in
// the same external state.
func allStatuses(ids []string, status routeclient.ExternalStatus, finalHash string) []routeclient.OperationStatusResult {
	results := make([]routeclient.OperationStatusResult, len(ids))
	for i, id := range ids {
		results[i] = routeclient.OperationStatusResult{ID: id, Status: status}
	}
	if len(results) > 0 {
		results[len(results)-1].Hash = finalHash
	}
	return results
}

// mockSigner is a test double for the signing backend
type mockSigner struct {
	mu sync.Mutex

	calls    int
	failAt   int // 1-based call number that fails, 0 for never
	failWith error

	payloads []models.TxPayload
}

func (m *mockSigner) SignTransaction(_ context.Context, payload models.TxPayload) (models.SignedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failAt != 0 && m.calls == m.failAt {
		return models.SignedOperation{}, m.failWith
	}

	m.payloads = append(m.payloads, payload)
	return models.SignedOperation{
		SignedPayload: fmt.Sprintf("0xsigned%02d", m.calls),
		Raw:           payload,
		ChainID:       payload.ChainID,
	}, nil
}

func (m *mockSigner) signedPayloads() []models.TxPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TxPayload, len(m.payloads))
	copy(out, m.payloads)
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "requests.json"), &logger.EmptyLogger{})
	require.NoError(t, err)
	return s
}

// storedTestOperations is a valid three-operation plan: two supporting
// operations on the source chain, then the final transaction on the
// destination chain.
func storedTestOperations() models.Operations {
	return models.Operations{
		{ChainID: 1, From: "0xsender", To: "0xtoken", Data: "0x095ea7b3", Kind: models.KindApproveToken, Status: models.StatusInitial},
		{ChainID: 1, From: "0xsender", To: "0xintent", Data: "0x12345678", Value: "0x1", GasLimit: 250000, Kind: models.KindSubmitIntent, Status: models.StatusInitial},
		{ChainID: 10, From: "0xsender", To: "0xtarget", Data: "0xa9059cbb", Kind: models.KindFinalTransaction, Status: models.StatusInitial},
	}
}

func testRouteResponse() *routeclient.RouteResponse {
	return &routeclient.RouteResponse{
		Route: []routeclient.RouteStep{
			{
				OnchainOperations: []routeclient.RouteOperation{
					{ChainID: 1, To: "0xtoken", Data: "0x095ea7b3", Kind: models.KindApproveToken},
					{ChainID: 1, To: "0xintent", Data: "0x12345678", Value: "0x1", Kind: models.KindSubmitIntent},
				},
				InputToken:  &models.Token{ChainID: 1, Symbol: "USDC", Decimals: 6},
				InputAmount: "1000000",
			},
		},
		FinalTransaction: &routeclient.RouteOperation{ChainID: 10, To: "0xtarget", Data: "0xa9059cbb"},
		PreTransactionRequiredState: &routeclient.RequiredState{
			TokenAmounts: []models.TokenAmount{
				{Token: models.Token{ChainID: 10, Symbol: "USDC", Decimals: 6}, RawAmount: "995000"},
			},
		},
	}
}

// resolution captures one onResolved invocation.
type resolution struct {
	success bool
	txHash  string
}

// waitResolved blocks until onResolved fires or the timeout elapses.
func waitResolved(t *testing.T, ch <-chan resolution) resolution {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(resolveTimeout):
		t.Fatal("request did not resolve in time")
		return resolution{}
	}
}
