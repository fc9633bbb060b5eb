// Package wire is the unix-socket protocol between the daemon and the pane
// renderers. Messages are newline-delimited JSON; each renderer subscribes to
// exactly one listing buffer and receives re-renders pushed by the daemon.
package wire

import "fmt"

// MessageType identifies the type of message
type MessageType string

const (
	MsgSubscribe   MessageType = "subscribe"
	MsgUnsubscribe MessageType = "unsubscribe"
	MsgRender      MessageType = "render"
	MsgScroll      MessageType = "scroll"
	MsgResize      MessageType = "resize"
	MsgNavigate    MessageType = "navigate"
	MsgSelect      MessageType = "select"
	MsgPing        MessageType = "ping"
	MsgPong        MessageType = "pong"
)

// Message is the base message structure for daemon<->renderer communication
type Message struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"client_id,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

// SubscribePayload binds a renderer to one listing buffer.
type SubscribePayload struct {
	Buffer       string `json:"buffer"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ColorProfile string `json:"color_profile,omitempty"` // "Ascii", "ANSI", "ANSI256", "TrueColor"
}

// RenderPayload carries one buffer's rows to a renderer.
type RenderPayload struct {
	SequenceNum uint64   `json:"seq"` // Monotonic sequence for race detection
	Buffer      string   `json:"buffer"`
	Path        string   `json:"path,omitempty"` // directory the buffer lists
	Lines       []string `json:"lines"`
	Width       int      `json:"width"`  // Rendered for this width
	Height      int      `json:"height"` // Rendered for this height
	TotalLines  int      `json:"total_lines"`
}

// ScrollPayload reports a renderer's viewport movement.
type ScrollPayload struct {
	Buffer string `json:"buffer"`
	Offset int    `json:"offset"`
}

// ResizePayload contains terminal dimensions
type ResizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NavigatePayload asks the daemon to change the session root (enter a child
// directory or go up to the parent).
type NavigatePayload struct {
	Path string `json:"path"`
}

// SelectPayload reports the entry under a renderer's cursor. The daemon uses
// it to fill the preview buffer.
type SelectPayload struct {
	Path string `json:"path"`
}

// SocketPath returns the daemon socket path for a tmux session
func SocketPath(sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	return fmt.Sprintf("/tmp/voyager-daemon-%s.sock", sessionID)
}

// PidPath returns the pidfile path for a tmux session
func PidPath(sessionID string) string {
	if sessionID == "" {
		sessionID = "default"
	}
	return fmt.Sprintf("/tmp/voyager-daemon-%s.pid", sessionID)
}
