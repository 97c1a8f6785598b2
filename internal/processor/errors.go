package processor

import (
	"errors"

	"github.com/danmuck/txprocessor/internal/correlation"
)

var (
	ErrEndpointRequired     = errors.New("processor: endpoint required")
	ErrNoHandlers           = errors.New("processor: no handlers registered")
	ErrAlreadyStarted       = errors.New("processor: already started")
	ErrConnectFailed        = errors.New("processor: connect failed")
	ErrRegistrationRejected = errors.New("processor: registration rejected")
	ErrUnhandledFamily      = errors.New("processor: unhandled transaction family")

	ErrInvalidAddress      = errors.New("processor: invalid state address")
	ErrAuthorizationDenied = errors.New("processor: state access not authorized")
	ErrEventRejected       = errors.New("processor: event rejected")
	ErrReceiptRejected     = errors.New("processor: receipt data rejected")

	ErrConnectionClosed = errors.New("processor: connection closed")
	ErrPoolClosed       = errors.New("processor: worker pool closed")
	ErrPoolFull         = errors.New("processor: worker pool queue full")
)

// Correlated round-trips fail with these; re-exported so handler code
// only needs this package.
var (
	ErrTimeout        = correlation.ErrTimeout
	ErrConnectionLost = correlation.ErrConnectionLost
)
