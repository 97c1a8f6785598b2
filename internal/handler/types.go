package handler

import (
	"context"
	"fmt"

	"github.com/danmuck/txprocessor/internal/protocol/session"
)

// Request is one transaction handed to Apply.
type Request struct {
	Header    session.TransactionHeader
	Payload   []byte
	Signature string
	ContextID string
}

// Event is emitted through State.AddEvent.
type Event struct {
	Type       string
	Attributes []Attribute
	Data       []byte
}

type Attribute struct {
	Key   string
	Value string
}

// State is the validator state view available to Apply for one transaction.
// Every call is a correlated round-trip on the processor's connection.
type State interface {
	// GetState returns a value for every requested address; absent
	// addresses map to nil.
	GetState(ctx context.Context, addresses []string) (map[string][]byte, error)
	// SetState writes entries and returns the addresses that were set.
	SetState(ctx context.Context, entries map[string][]byte) ([]string, error)
	// DeleteState removes addresses and returns the ones actually deleted.
	DeleteState(ctx context.Context, addresses []string) ([]string, error)
	AddEvent(ctx context.Context, event Event) error
	AddReceiptData(ctx context.Context, data []byte) error
}

// Handler applies transactions for one family.
type Handler interface {
	FamilyName() string
	FamilyVersions() []string
	// Namespaces lists 6-hex-char address prefixes this handler may write.
	Namespaces() []string
	// Apply returns nil on success, *InvalidTransactionError to reject the
	// transaction, or any other error for an internal failure.
	Apply(ctx context.Context, req *Request, state State) error
}

// EncodingHandler restricts a handler to specific payload encodings.
type EncodingHandler interface {
	Handler
	PayloadEncodings() []string
}

// InvalidTransactionError rejects a transaction as invalid.
type InvalidTransactionError struct {
	Message      string
	ExtendedData []byte
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", e.Message)
}

// InvalidTransaction returns an *InvalidTransactionError with a formatted message.
func InvalidTransaction(format string, args ...any) error {
	return &InvalidTransactionError{Message: fmt.Sprintf(format, args...)}
}

// InternalError marks a processor-side failure; the validator may retry.
type InternalError struct {
	Message      string
	ExtendedData []byte
	Err          error
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Internal wraps err as an *InternalError.
func Internal(message string, err error) error {
	return &InternalError{Message: message, Err: err}
}
