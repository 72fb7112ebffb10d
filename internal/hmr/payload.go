// Package hmr implements the hot-module-replacement client used by a runner:
// the payloads a dev server pushes, the per-module HotContext handed to
// executing modules, and the connections (socket.io, websocket, local file
// watching) that deliver payloads.
package hmr

import (
	"encoding/json"
	"fmt"
)

// PayloadType discriminates HMR payloads.
type PayloadType string

const (
	TypeConnected  PayloadType = "connected"
	TypeUpdate     PayloadType = "update"
	TypeFullReload PayloadType = "full-reload"
	TypePrune      PayloadType = "prune"
	TypeCustom     PayloadType = "custom"
	TypeError      PayloadType = "error"
	TypePing       PayloadType = "ping"
)

// Update kinds carried in an update payload.
const (
	UpdateJS  = "js-update"
	UpdateCSS = "css-update"
)

// Events notified to custom listeners by the runner.
const (
	EventBeforeUpdate     = "modrun:beforeUpdate"
	EventAfterUpdate      = "modrun:afterUpdate"
	EventBeforeFullReload = "modrun:beforeFullReload"
	EventBeforePrune      = "modrun:beforePrune"
	EventInvalidate       = "modrun:invalidate"
	EventError            = "modrun:error"
)

// Update describes one changed module and the boundary that accepts it.
type Update struct {
	Type         string `json:"type"`
	Path         string `json:"path"`
	AcceptedPath string `json:"acceptedPath"`
	Timestamp    int64  `json:"timestamp"`
}

// ErrorInfo is the error carried by an error payload.
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Payload is a message exchanged with the dev server.
type Payload struct {
	Type PayloadType `json:"type"`

	// update
	Updates []Update `json:"updates,omitempty"`
	// full-reload
	TriggeredBy string `json:"triggeredBy,omitempty"`
	// prune
	Paths []string `json:"paths,omitempty"`
	// custom
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	// error
	Err *ErrorInfo `json:"err,omitempty"`
}

// DecodePayload converts a loosely typed value (raw JSON bytes, a JSON string
// or a decoded JSON object) into a Payload.
func DecodePayload(v any) (Payload, error) {
	var raw []byte
	switch x := v.(type) {
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	case json.RawMessage:
		raw = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Payload{}, fmt.Errorf("encoding hmr payload: %w", err)
		}
		raw = b
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding hmr payload: %w", err)
	}
	if p.Type == "" {
		return Payload{}, fmt.Errorf("decoding hmr payload: missing type")
	}
	return p, nil
}

// asObject converts p into a plain JSON object, the form socket.io emits.
func (p Payload) asObject() (map[string]any, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
