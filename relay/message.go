package relay

import (
	"encoding/json"
	"time"
)

// MessageType tags a push-channel message.
type MessageType string

const (
	TypeTranscript MessageType = "transcript"
	TypeConnected  MessageType = "connected"
	TypeHeartbeat  MessageType = "heartbeat"
)

// TimestampLayout renders message timestamps as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is one push-channel message. Transcript messages always carry the
// full buffer, never a delta.
type Message struct {
	Type MessageType
	// CallSessionID is nil when no call is active.
	CallSessionID *string
	Transcript    string
	Timestamp     time.Time
	Text          string
}

// NewConnectedMessage greets a subscriber that has just registered.
func NewConnectedMessage(now time.Time) Message {
	return Message{Type: TypeConnected, Text: "Connected to transcript stream", Timestamp: now}
}

// NewHeartbeatMessage is the transport keep-alive.
func NewHeartbeatMessage(now time.Time) Message {
	return Message{Type: TypeHeartbeat, Timestamp: now}
}

type transcriptWire struct {
	Type          MessageType `json:"type"`
	CallSessionID *string     `json:"callSessionId"`
	Transcript    string      `json:"transcript"`
	Timestamp     string      `json:"timestamp"`
}

type noticeWire struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
}

// MarshalJSON keeps callSessionId and transcript on transcript messages even
// when the call is cleared, and leaves them off everything else.
func (m Message) MarshalJSON() ([]byte, error) {
	ts := m.Timestamp.UTC().Format(TimestampLayout)
	if m.Type == TypeTranscript {
		return json.Marshal(transcriptWire{
			Type:          m.Type,
			CallSessionID: m.CallSessionID,
			Transcript:    m.Transcript,
			Timestamp:     ts,
		})
	}
	return json.Marshal(noticeWire{Type: m.Type, Timestamp: ts, Message: m.Text})
}

// UnmarshalJSON accepts the wire form produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		Type          MessageType `json:"type"`
		CallSessionID *string     `json:"callSessionId"`
		Transcript    string      `json:"transcript"`
		Timestamp     time.Time   `json:"timestamp"`
		Message       string      `json:"message"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		Type:          w.Type,
		CallSessionID: w.CallSessionID,
		Transcript:    w.Transcript,
		Timestamp:     w.Timestamp,
		Text:          w.Message,
	}
	return nil
}

// State is a read-only snapshot of the relay.
type State struct {
	ActiveCall      *string `json:"activeCall"`
	Transcript      string  `json:"transcript"`
	ConnectionCount int     `json:"connectionCount"`
}

// ActiveCallID returns the active call identity, or "" when none is set.
func (s State) ActiveCallID() string {
	if s.ActiveCall == nil {
		return ""
	}
	return *s.ActiveCall
}
