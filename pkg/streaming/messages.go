// Package streaming defines the websocket protocol spoken between the
// recorder and the replay server.
package streaming

import (
	"encoding/json"
)

// Message type constants matching the streaming protocol.
const (
	TypeSaveReplay = "save_replay"
	TypeAck        = "ack"
)

// Envelope wraps all messages sent over the WebSocket. ID correlates a
// request with its ack.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
	ID   string `json:"id,omitempty"`
	// Ref is the server-side reference of a stored replay.
	Ref string `json:"ref,omitempty"`
	// Error is set when the server rejected the request.
	Error string `json:"error,omitempty"`
}

// SaveReplayPayload carries one finished session. Replay is the document in
// its persisted JSON form.
type SaveReplayPayload struct {
	Name       string          `json:"name"`
	Score      int             `json:"score"`
	FinalStage int             `json:"finalStage"`
	Frames     int             `json:"frames"`
	Replay     json.RawMessage `json:"replay"`
}
