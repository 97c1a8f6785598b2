package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danmuck/txprocessor/internal/handler"
	"github.com/danmuck/txprocessor/internal/observability"
	"github.com/danmuck/txprocessor/internal/protocol/schema"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

type StateContextConfig struct {
	RequestTimeout time.Duration
	// MaxBatch caps addresses or entries per state request; <= 0 sends one request.
	MaxBatch int
}

// StateContext is the handler.State for one transaction. It is owned by the
// worker applying that transaction and is not shared.
type StateContext struct {
	conn       Requester
	contextID  string
	namespaces []string
	cfg        StateContextConfig
}

var _ handler.State = (*StateContext)(nil)

func NewStateContext(conn Requester, contextID string, namespaces []string, cfg StateContextConfig) *StateContext {
	return &StateContext{
		conn:       conn,
		contextID:  contextID,
		namespaces: append([]string(nil), namespaces...),
		cfg:        cfg,
	}
}

func (s *StateContext) ContextID() string {
	return s.contextID
}

func (s *StateContext) GetState(ctx context.Context, addresses []string) (map[string][]byte, error) {
	addresses = dedupe(addresses)
	for _, addr := range addresses {
		if err := ValidateAddress(addr); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]byte, len(addresses))
	for _, addr := range addresses {
		out[addr] = nil
	}
	if len(addresses) == 0 {
		return out, nil
	}

	start := time.Now()
	for _, batch := range chunk(addresses, s.cfg.MaxBatch) {
		resp, err := roundTrip[session.StateGetResponse](ctx, s.conn, schema.MsgTpStateGetRequest,
			session.StateGetRequest{ContextID: s.contextID, Addresses: batch}, s.cfg.RequestTimeout)
		if err == nil && resp.Status == session.StateAuthorizationError {
			err = fmt.Errorf("%w: get %v", ErrAuthorizationDenied, batch)
		}
		if err != nil {
			recordState("get", err, start)
			return nil, err
		}
		for _, e := range resp.Entries {
			if _, asked := out[e.Address]; asked && len(e.Data) > 0 {
				out[e.Address] = e.Data
			}
		}
	}
	recordState("get", nil, start)
	return out, nil
}

func (s *StateContext) SetState(ctx context.Context, entries map[string][]byte) ([]string, error) {
	addresses := make([]string, 0, len(entries))
	for addr := range entries {
		if err := ValidateWriteAddress(addr, s.namespaces); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	if len(addresses) == 0 {
		return []string{}, nil
	}
	sort.Strings(addresses)

	start := time.Now()
	set := make([]string, 0, len(addresses))
	for _, batch := range chunk(addresses, s.cfg.MaxBatch) {
		wire := make([]session.StateEntry, 0, len(batch))
		for _, addr := range batch {
			wire = append(wire, session.StateEntry{Address: addr, Data: entries[addr]})
		}
		resp, err := roundTrip[session.StateSetResponse](ctx, s.conn, schema.MsgTpStateSetRequest,
			session.StateSetRequest{ContextID: s.contextID, Entries: wire}, s.cfg.RequestTimeout)
		if err == nil && resp.Status == session.StateAuthorizationError {
			err = fmt.Errorf("%w: set %v", ErrAuthorizationDenied, batch)
		}
		if err != nil {
			recordState("set", err, start)
			return nil, err
		}
		set = append(set, resp.Addresses...)
	}
	recordState("set", nil, start)
	return set, nil
}

func (s *StateContext) DeleteState(ctx context.Context, addresses []string) ([]string, error) {
	addresses = dedupe(addresses)
	for _, addr := range addresses {
		if err := ValidateWriteAddress(addr, s.namespaces); err != nil {
			return nil, err
		}
	}
	if len(addresses) == 0 {
		return []string{}, nil
	}

	start := time.Now()
	deleted := make([]string, 0, len(addresses))
	for _, batch := range chunk(addresses, s.cfg.MaxBatch) {
		resp, err := roundTrip[session.StateDeleteResponse](ctx, s.conn, schema.MsgTpStateDeleteRequest,
			session.StateDeleteRequest{ContextID: s.contextID, Addresses: batch}, s.cfg.RequestTimeout)
		if err == nil && resp.Status == session.StateAuthorizationError {
			err = fmt.Errorf("%w: delete %v", ErrAuthorizationDenied, batch)
		}
		if err != nil {
			recordState("delete", err, start)
			return nil, err
		}
		deleted = append(deleted, resp.Addresses...)
	}
	recordState("delete", nil, start)
	return deleted, nil
}

func (s *StateContext) AddEvent(ctx context.Context, event handler.Event) error {
	attrs := make([]session.EventAttribute, 0, len(event.Attributes))
	for _, a := range event.Attributes {
		attrs = append(attrs, session.EventAttribute{Key: a.Key, Value: a.Value})
	}
	start := time.Now()
	resp, err := roundTrip[session.EventAddResponse](ctx, s.conn, schema.MsgTpEventAddRequest, session.EventAddRequest{
		ContextID: s.contextID,
		Event:     session.Event{EventType: event.Type, Attributes: attrs, Data: event.Data},
	}, s.cfg.RequestTimeout)
	if err == nil && resp.Status != session.AckOK {
		err = fmt.Errorf("%w: %s", ErrEventRejected, event.Type)
	}
	recordState("event", err, start)
	return err
}

func (s *StateContext) AddReceiptData(ctx context.Context, data []byte) error {
	start := time.Now()
	resp, err := roundTrip[session.ReceiptAddDataResponse](ctx, s.conn, schema.MsgTpReceiptAddDataRequest,
		session.ReceiptAddDataRequest{ContextID: s.contextID, Data: data}, s.cfg.RequestTimeout)
	if err == nil && resp.Status != session.AckOK {
		err = ErrReceiptRejected
	}
	recordState("receipt", err, start)
	return err
}

func chunk(items []string, size int) [][]string {
	if size <= 0 || len(items) <= size {
		return [][]string{items}
	}
	out := make([][]string, 0, (len(items)+size-1)/size)
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	return append(out, items)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func recordState(op string, err error, start time.Time) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		result = "timeout"
	case errors.Is(err, ErrConnectionLost):
		result = "connection_lost"
	case errors.Is(err, ErrAuthorizationDenied):
		result = "unauthorized"
	default:
		result = "error"
	}
	observability.RecordStateCall(op, result, time.Since(start))
}
