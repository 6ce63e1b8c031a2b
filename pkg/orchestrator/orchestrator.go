// Package orchestrator turns a single dApp transaction intent into an
// ordered, possibly multi-chain operation plan, signs and submits it, and
// reconciles externally polled statuses until the request resolves.
package orchestrator

import (
	"context"
	"errors"

	"github.com/orb-labs/orchestrator/pkg/models"
	"github.com/orb-labs/orchestrator/pkg/routeclient"
)

var (
	// ErrIntentNotEligible signals that the intent carries no call data or
	// destination chain and should be passed through to the wallet unchanged.
	ErrIntentNotEligible = errors.New("intent not eligible for multi-step formulation")

	// ErrSigningAborted wraps any signing failure; the whole request is
	// aborted and nothing is submitted.
	ErrSigningAborted = errors.New("signing aborted")

	// ErrUserRejected is returned by signing backends when the user declines.
	ErrUserRejected = errors.New("user rejected signing request")

	// ErrDeviceDisconnected is returned by hardware-wallet backends when the
	// device goes away mid-request.
	ErrDeviceDisconnected = errors.New("signing device disconnected")

	// ErrRouteServiceUnavailable is returned while the circuit breaker is open.
	ErrRouteServiceUnavailable = errors.New("route service unavailable")

	// ErrAlreadySubmitting is returned when a submit races an in-flight one
	// for the same request key.
	ErrAlreadySubmitting = errors.New("request is already being submitted")
)

// RouteService is the narrow contract of the external formulation,
// submission and status service. Implemented by routeclient.Client.
type RouteService interface {
	Formulate(ctx context.Context, from string, details models.TransactionIntent) (*routeclient.RouteResponse, error)
	SubmitOperations(ctx context.Context, operations []models.SignedOperation) error
	GetStatuses(ctx context.Context, ids []string) ([]routeclient.OperationStatusResult, error)
}

// Signer is the contract of the external signing backend.
type Signer interface {
	SignTransaction(ctx context.Context, payload models.TxPayload) (models.SignedOperation, error)
}

// ResolveFunc is invoked exactly once when a submitted request reaches a
// terminal state. txHash is empty on failure.
type ResolveFunc func(success bool, txHash string)
