package stream

import (
	"encoding/json"

	"lexroute/internal/adapter/channel"
)

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Methods a client may call.
const (
	MethodAnalyze = "analyze"
	MethodRoute   = "route"
	MethodAgents  = "agents"
	MethodStats   = "stats"
)

// Frame is the envelope exchanged between client and server. Events carry
// the ID of the request whose dispatch they belong to.
type Frame struct {
	Type    FrameType          `json:"type"`
	ID      uint64             `json:"id,omitempty"`
	Method  string             `json:"method,omitempty"`
	Payload json.RawMessage    `json:"payload,omitempty"`
	Error   *channel.ErrorBody `json:"error,omitempty"`
}
