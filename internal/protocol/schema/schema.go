package schema

import "fmt"

// MessageType is the envelope type tag.
type MessageType uint16

// Message kinds exchanged with the validator. Every request kind has a
// paired response kind at the next value.
const (
	MsgTpRegisterRequest    MessageType = 1
	MsgTpRegisterResponse   MessageType = 2
	MsgTpUnregisterRequest  MessageType = 3
	MsgTpUnregisterResponse MessageType = 4
	MsgTpProcessRequest     MessageType = 5
	MsgTpProcessResponse    MessageType = 6

	MsgTpStateGetRequest     MessageType = 7
	MsgTpStateGetResponse    MessageType = 8
	MsgTpStateSetRequest     MessageType = 9
	MsgTpStateSetResponse    MessageType = 10
	MsgTpStateDeleteRequest  MessageType = 11
	MsgTpStateDeleteResponse MessageType = 12

	MsgTpReceiptAddDataRequest  MessageType = 13
	MsgTpReceiptAddDataResponse MessageType = 14
	MsgTpEventAddRequest        MessageType = 15
	MsgTpEventAddResponse       MessageType = 16

	MsgPingRequest  MessageType = 100
	MsgPingResponse MessageType = 101
)

var names = map[MessageType]string{
	MsgTpRegisterRequest:        "TP_REGISTER_REQUEST",
	MsgTpRegisterResponse:       "TP_REGISTER_RESPONSE",
	MsgTpUnregisterRequest:      "TP_UNREGISTER_REQUEST",
	MsgTpUnregisterResponse:     "TP_UNREGISTER_RESPONSE",
	MsgTpProcessRequest:         "TP_PROCESS_REQUEST",
	MsgTpProcessResponse:        "TP_PROCESS_RESPONSE",
	MsgTpStateGetRequest:        "TP_STATE_GET_REQUEST",
	MsgTpStateGetResponse:       "TP_STATE_GET_RESPONSE",
	MsgTpStateSetRequest:        "TP_STATE_SET_REQUEST",
	MsgTpStateSetResponse:       "TP_STATE_SET_RESPONSE",
	MsgTpStateDeleteRequest:     "TP_STATE_DELETE_REQUEST",
	MsgTpStateDeleteResponse:    "TP_STATE_DELETE_RESPONSE",
	MsgTpReceiptAddDataRequest:  "TP_RECEIPT_ADD_DATA_REQUEST",
	MsgTpReceiptAddDataResponse: "TP_RECEIPT_ADD_DATA_RESPONSE",
	MsgTpEventAddRequest:        "TP_EVENT_ADD_REQUEST",
	MsgTpEventAddResponse:       "TP_EVENT_ADD_RESPONSE",
	MsgPingRequest:              "PING_REQUEST",
	MsgPingResponse:             "PING_RESPONSE",
}

var responses = map[MessageType]MessageType{
	MsgTpRegisterRequest:       MsgTpRegisterResponse,
	MsgTpUnregisterRequest:     MsgTpUnregisterResponse,
	MsgTpProcessRequest:        MsgTpProcessResponse,
	MsgTpStateGetRequest:       MsgTpStateGetResponse,
	MsgTpStateSetRequest:       MsgTpStateSetResponse,
	MsgTpStateDeleteRequest:    MsgTpStateDeleteResponse,
	MsgTpReceiptAddDataRequest: MsgTpReceiptAddDataResponse,
	MsgTpEventAddRequest:       MsgTpEventAddResponse,
	MsgPingRequest:             MsgPingResponse,
}

func (t MessageType) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint16(t))
}

// Known reports whether t is a recognized tag.
func Known(t MessageType) bool {
	_, ok := names[t]
	return ok
}

// IsResponse reports whether t is the reply half of an exchange.
func IsResponse(t MessageType) bool {
	for _, resp := range responses {
		if resp == t {
			return true
		}
	}
	return false
}

// ResponseFor returns the reply kind paired with a request kind.
func ResponseFor(req MessageType) (MessageType, bool) {
	resp, ok := responses[req]
	return resp, ok
}
