package relay

import (
	"encoding/json"
	"fmt"
)

// Event names carried in the frame envelope.
const (
	EventEditContract   = "editContract"
	EventContractUpdate = "contract_update"
	EventEditError      = "edit_error"
	EventLog            = "log"
)

// Frame is the JSON envelope of every WebSocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EditErrorPayload is the data of an edit_error event. RequestID is empty
// when the failing frame could not be decoded far enough to read it.
type EditErrorPayload struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
