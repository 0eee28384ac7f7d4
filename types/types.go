package types

import "time"

// Audio tracks of a provider media stream.
const (
	TrackInbound  = "inbound"
	TrackOutbound = "outbound"
)

// Speaker labels used in the live transcript.
const (
	SpeakerCustomer = "Customer"
	SpeakerAgent    = "Agent"
)

// TranscriptionResult is one recognition result from a speech-to-text stream.
type TranscriptionResult struct {
	Transcription string
	Confidence    float64
	Final         bool
	Track         string
}

// SpeakerForTrack maps an audio track to the label shown in the transcript.
// The inbound leg carries the caller; anything else is the agent.
func SpeakerForTrack(track string) string {
	if track == TrackInbound || track == "inbound_track" {
		return SpeakerCustomer
	}
	return SpeakerAgent
}

// FormatSegment renders one finalized utterance as a transcript segment.
func FormatSegment(label, text string) string {
	return "\n" + label + ": " + text
}

// CallControlEnvelope is the JSON body of a call-control webhook.
type CallControlEnvelope struct {
	Data CallControlEvent `json:"data"`
}

// CallControlEvent is a single call-control event.
type CallControlEvent struct {
	ID         string             `json:"id"`
	EventType  string             `json:"event_type"`
	OccurredAt string             `json:"occurred_at"`
	RecordType string             `json:"record_type"`
	Payload    CallControlPayload `json:"payload"`
}

// CallControlPayload carries the fields of every call-control event type.
type CallControlPayload struct {
	CallControlID     string             `json:"call_control_id"`
	CallLegID         string             `json:"call_leg_id"`
	CallSessionID     string             `json:"call_session_id"`
	ConnectionID      string             `json:"connection_id"`
	ClientState       string             `json:"client_state"`
	From              string             `json:"from"`
	To                string             `json:"to"`
	Direction         string             `json:"direction"`
	State             string             `json:"state"`
	StartTime         string             `json:"start_time"`
	EndTime           string             `json:"end_time"`
	HangupCause       string             `json:"hangup_cause"`
	RecordingURL      string             `json:"recording_url"`
	TranscriptionText string             `json:"transcription_text"`
	TranscriptionData *TranscriptionData `json:"transcription_data"`
}

// SessionID identifies the call for the live relay. It falls back to the
// control id for providers that omit sessions.
func (p CallControlPayload) SessionID() string {
	if p.CallSessionID != "" {
		return p.CallSessionID
	}
	return p.CallControlID
}

// TranscriptionData is the body of a real-time call.transcription event.
type TranscriptionData struct {
	Transcript         string  `json:"transcript"`
	Confidence         float64 `json:"confidence"`
	IsFinal            bool    `json:"is_final"`
	TranscriptionTrack string  `json:"transcription_track"`
}

// Call-control event types.
const (
	EventCallInitiated                   = "call.initiated"
	EventCallAnswered                    = "call.answered"
	EventCallHangup                      = "call.hangup"
	EventCallTranscription               = "call.transcription"
	EventCallTranscriptionSaved          = "call.transcription.saved"
	EventCallRecordingTranscriptionSaved = "call.recording.transcription.saved"
)

// CallStatus is a TeXML status callback regardless of body encoding.
type CallStatus struct {
	CallSid       string
	ParentCallSid string
	Status        string
	Duration      int
	RecordingURL  string
	From          string
	To            string
	Direction     string
	StartTime     string
	EndTime       string
	AccountSid    string
	Timestamp     time.Time
}

// CallID is the call the status refers to. A transferred leg reports its
// parent so the dashboard follows the original inbound call.
func (s CallStatus) CallID() string {
	if s.ParentCallSid != "" {
		return s.ParentCallSid
	}
	return s.CallSid
}

// Call statuses reported by TeXML status callbacks.
const (
	StatusRinging    = "ringing"
	StatusAnswered   = "answered"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusHangup     = "hangup"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
	StatusFailed     = "failed"
)

// RecordingTranscription is a recording transcription callback.
type RecordingTranscription struct {
	CallSid          string
	Transcript       string
	RecordingURL     string
	CallStatus       string
	From             string
	To               string
	TranscriptionSid string
	AccountSid       string
}

// MediaEvent is one frame of a provider media stream.
type MediaEvent struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Start     struct {
		CallSid   string   `json:"callSid"`
		StreamSid string   `json:"streamSid"`
		Tracks    []string `json:"tracks"`
	} `json:"start"`
	Media struct {
		Track   string `json:"track"`
		Payload string `json:"payload"`
	} `json:"media"`
	Stop struct {
		CallSid string `json:"callSid"`
	} `json:"stop"`
}

// Media stream event names.
const (
	MediaEventConnected = "connected"
	MediaEventStart     = "start"
	MediaEventMedia     = "media"
	MediaEventStop      = "stop"
)
