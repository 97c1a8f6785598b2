package session

import (
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion is advertised at registration.
const ProtocolVersion uint32 = 1

var (
	ErrInvalidRegistration = errors.New("session: invalid registration")
	ErrInvalidProcess      = errors.New("session: invalid process request")
	ErrInvalidStatus       = errors.New("session: invalid status")
)

type RegisterStatus string

const (
	RegisterOK       RegisterStatus = "OK"
	RegisterError    RegisterStatus = "ERROR"
	RegisterNotReady RegisterStatus = "NOT_READY"
)

type ProcessStatus string

const (
	ProcessOK                 ProcessStatus = "OK"
	ProcessInvalidTransaction ProcessStatus = "INVALID_TRANSACTION"
	ProcessInternalError      ProcessStatus = "INTERNAL_ERROR"
)

type StateStatus string

const (
	StateOK                 StateStatus = "OK"
	StateAuthorizationError StateStatus = "AUTHORIZATION_ERROR"
)

// AckStatus answers unregister, event and receipt requests.
type AckStatus string

const (
	AckOK    AckStatus = "OK"
	AckError AckStatus = "ERROR"
)

// RegisterRequest announces one (family, version) served by this processor.
type RegisterRequest struct {
	Family          string   `cbor:"family"`
	Version         string   `cbor:"version"`
	Namespaces      []string `cbor:"namespaces"`
	Encodings       []string `cbor:"encodings,omitempty"`
	MaxOccupancy    uint32   `cbor:"max_occupancy"`
	ProtocolVersion uint32   `cbor:"protocol_version"`
}

func (r RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Family) == "" {
		return fmt.Errorf("%w: missing family", ErrInvalidRegistration)
	}
	if strings.TrimSpace(r.Version) == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidRegistration)
	}
	if len(r.Namespaces) == 0 {
		return fmt.Errorf("%w: missing namespaces", ErrInvalidRegistration)
	}
	return nil
}

type RegisterResponse struct {
	Status  RegisterStatus `cbor:"status"`
	Message string         `cbor:"message,omitempty"`
}

func (r RegisterResponse) Validate() error {
	switch r.Status {
	case RegisterOK, RegisterError, RegisterNotReady:
		return nil
	}
	return fmt.Errorf("%w: register status %q", ErrInvalidStatus, r.Status)
}

type UnregisterRequest struct{}

type UnregisterResponse struct {
	Status AckStatus `cbor:"status"`
}

func (r UnregisterResponse) Validate() error {
	return validateAck("unregister", r.Status)
}

// TransactionHeader is the signed header of one transaction.
type TransactionHeader struct {
	FamilyName       string   `cbor:"family_name"`
	FamilyVersion    string   `cbor:"family_version"`
	PayloadEncoding  string   `cbor:"payload_encoding,omitempty"`
	SignerPublicKey  string   `cbor:"signer_public_key"`
	BatcherPublicKey string   `cbor:"batcher_public_key,omitempty"`
	Inputs           []string `cbor:"inputs,omitempty"`
	Outputs          []string `cbor:"outputs,omitempty"`
	Dependencies     []string `cbor:"dependencies,omitempty"`
	Nonce            string   `cbor:"nonce,omitempty"`
	PayloadSha512    string   `cbor:"payload_sha512,omitempty"`
}

// ProcessRequest asks the processor to apply one transaction inside the
// validator context ContextID.
type ProcessRequest struct {
	Header    TransactionHeader `cbor:"header"`
	Payload   []byte            `cbor:"payload"`
	Signature string            `cbor:"signature"`
	ContextID string            `cbor:"context_id"`
}

func (r ProcessRequest) Validate() error {
	if strings.TrimSpace(r.Header.FamilyName) == "" {
		return fmt.Errorf("%w: missing family_name", ErrInvalidProcess)
	}
	if strings.TrimSpace(r.Header.FamilyVersion) == "" {
		return fmt.Errorf("%w: missing family_version", ErrInvalidProcess)
	}
	if strings.TrimSpace(r.ContextID) == "" {
		return fmt.Errorf("%w: missing context_id", ErrInvalidProcess)
	}
	return nil
}

type ProcessResponse struct {
	Status       ProcessStatus `cbor:"status"`
	Message      string        `cbor:"message,omitempty"`
	ExtendedData []byte        `cbor:"extended_data,omitempty"`
}

func (r ProcessResponse) Validate() error {
	switch r.Status {
	case ProcessOK, ProcessInvalidTransaction, ProcessInternalError:
		return nil
	}
	return fmt.Errorf("%w: process status %q", ErrInvalidStatus, r.Status)
}

// StateEntry is one address/value pair. Empty Data on a get reply means absent.
type StateEntry struct {
	Address string `cbor:"address"`
	Data    []byte `cbor:"data,omitempty"`
}

type StateGetRequest struct {
	ContextID string   `cbor:"context_id"`
	Addresses []string `cbor:"addresses"`
}

type StateGetResponse struct {
	Status  StateStatus  `cbor:"status"`
	Entries []StateEntry `cbor:"entries,omitempty"`
}

func (r StateGetResponse) Validate() error {
	return validateState("get", r.Status)
}

type StateSetRequest struct {
	ContextID string       `cbor:"context_id"`
	Entries   []StateEntry `cbor:"entries"`
}

type StateSetResponse struct {
	Status    StateStatus `cbor:"status"`
	Addresses []string    `cbor:"addresses,omitempty"`
}

func (r StateSetResponse) Validate() error {
	return validateState("set", r.Status)
}

type StateDeleteRequest struct {
	ContextID string   `cbor:"context_id"`
	Addresses []string `cbor:"addresses"`
}

type StateDeleteResponse struct {
	Status    StateStatus `cbor:"status"`
	Addresses []string    `cbor:"addresses,omitempty"`
}

func (r StateDeleteResponse) Validate() error {
	return validateState("delete", r.Status)
}

type EventAttribute struct {
	Key   string `cbor:"key"`
	Value string `cbor:"value"`
}

type Event struct {
	EventType  string           `cbor:"event_type"`
	Attributes []EventAttribute `cbor:"attributes,omitempty"`
	Data       []byte           `cbor:"data,omitempty"`
}

type EventAddRequest struct {
	ContextID string `cbor:"context_id"`
	Event     Event  `cbor:"event"`
}

type EventAddResponse struct {
	Status AckStatus `cbor:"status"`
}

func (r EventAddResponse) Validate() error {
	return validateAck("event", r.Status)
}

type ReceiptAddDataRequest struct {
	ContextID string `cbor:"context_id"`
	Data      []byte `cbor:"data"`
}

type ReceiptAddDataResponse struct {
	Status AckStatus `cbor:"status"`
}

func (r ReceiptAddDataResponse) Validate() error {
	return validateAck("receipt", r.Status)
}

type PingRequest struct{}

type PingResponse struct{}

func validateAck(kind string, status AckStatus) error {
	if status == AckOK || status == AckError {
		return nil
	}
	return fmt.Errorf("%w: %s status %q", ErrInvalidStatus, kind, status)
}

func validateState(kind string, status StateStatus) error {
	if status == StateOK || status == StateAuthorizationError {
		return nil
	}
	return fmt.Errorf("%w: state %s status %q", ErrInvalidStatus, kind, status)
}
