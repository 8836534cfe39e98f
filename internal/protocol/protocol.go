// Package protocol defines the JSON messages of the viewer stream: a
// renderer connects over a websocket, says HELLO, receives the installation
// META once and FRAME messages as the pixel state changes.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello = "HELLO"
	TypeMeta  = "META"
	TypeFrame = "FRAME"
	TypeStats = "STATS"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
