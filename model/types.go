package model

import (
	"encoding/json"
	"time"
)

// Call is a row of the calls table.
type Call struct {
	ID            int64      `json:"id"`
	CallControlID string     `json:"call_control_id"`
	CallSessionID string     `json:"call_session_id,omitempty"`
	AgentID       string     `json:"agent_id,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	AgentPhone    string     `json:"agent_phone,omitempty"`
	Direction     string     `json:"direction,omitempty"`
	Status        string     `json:"status"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Duration      *int       `json:"duration,omitempty"`
	RecordingURL  string     `json:"recording_url,omitempty"`
	ClientState   string     `json:"client_state,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CallUpdate carries the optional fields written alongside a status change.
// Zero values are left untouched.
type CallUpdate struct {
	EndTime      *time.Time
	Duration     int
	RecordingURL string
}

// Hangup is the data saved when a call ends.
type Hangup struct {
	CallControlID string
	CallSessionID string
	AgentID       string
	CustomerPhone string
	AgentPhone    string
	StartTime     *time.Time
	EndTime       *time.Time
}

// Transcript is a row of the transcripts table.
type Transcript struct {
	ID             int64           `json:"id"`
	CallControlID  string          `json:"call_control_id"`
	TranscriptText string          `json:"transcript_text"`
	Confidence     *float64        `json:"confidence,omitempty"`
	Language       string          `json:"language"`
	SpeakerLabels  json.RawMessage `json:"speaker_labels,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TranscriptView is a transcript joined with its call.
type TranscriptView struct {
	Transcript
	CustomerPhone string     `json:"customer_phone,omitempty"`
	AgentPhone    string     `json:"agent_phone,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Duration      *int       `json:"duration,omitempty"`
}

// CallDetail is a call joined with its latest transcript and coaching session.
type CallDetail struct {
	Call
	TranscriptText    string            `json:"transcript_text,omitempty"`
	Confidence        *float64          `json:"confidence,omitempty"`
	Language          string            `json:"language,omitempty"`
	CoachingContent   *CoachingFeedback `json:"coaching_content,omitempty"`
	AvatarScript      string            `json:"avatar_script,omitempty"`
	CoachingCompleted bool              `json:"coaching_completed"`
}

// CoachingFeedback is the structured feedback produced for an agent.
type CoachingFeedback struct {
	OverallReview string   `json:"overallReview,omitempty"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	Suggestions   []string `json:"suggestions"`
	OverallScore  int      `json:"overallScore,omitempty"`
	KeyTakeaways  []string `json:"keyTakeaways,omitempty"`
	AvatarScript  string   `json:"avatarScript,omitempty"`
}

// UnmarshalJSON also accepts "overall review", which models tend to echo
// from the prompt verbatim.
func (f *CoachingFeedback) UnmarshalJSON(data []byte) error {
	type plain CoachingFeedback
	var aux struct {
		plain
		OverallReviewSpaced string `json:"overall review"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = CoachingFeedback(aux.plain)
	if f.OverallReview == "" {
		f.OverallReview = aux.OverallReviewSpaced
	}
	return nil
}

// CoachingSession is a row of coaching_sessions joined with call context.
type CoachingSession struct {
	ID              int64            `json:"id"`
	CallControlID   string           `json:"call_control_id"`
	AgentID         string           `json:"agent_id"`
	CoachingContent CoachingFeedback `json:"coaching_content"`
	AvatarScript    string           `json:"avatar_script,omitempty"`
	Completed       bool             `json:"completed"`
	CreatedAt       time.Time        `json:"created_at"`

	CustomerPhone  string     `json:"customer_phone,omitempty"`
	AgentPhone     string     `json:"agent_phone,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	Duration       *int       `json:"duration,omitempty"`
	TranscriptText string     `json:"transcript_text,omitempty"`
}

// GeneratedSession is a coaching result returned to the dashboard before it
// is stored.
type GeneratedSession struct {
	ID        string           `json:"id"`
	CallID    string           `json:"callId,omitempty"`
	AgentID   string           `json:"agentId,omitempty"`
	Feedback  CoachingFeedback `json:"feedback"`
	Completed bool             `json:"completed"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Insights are live suggestions for the agent during a call.
type Insights struct {
	Suggestions       []string `json:"suggestions"`
	NextSteps         []string `json:"nextSteps"`
	CustomerSentiment string   `json:"customerSentiment"`
	Urgency           string   `json:"urgency"`
}

// FallbackInsights is returned when insights cannot be generated.
func FallbackInsights() Insights {
	return Insights{
		Suggestions:       []string{"Continue listening actively", "Ask clarifying questions"},
		NextSteps:         []string{"Gather more information"},
		CustomerSentiment: "neutral",
		Urgency:           "medium",
	}
}

// CallLog is a row of call_logs.
type CallLog struct {
	ID            int64           `json:"id"`
	CallControlID string          `json:"call_control_id"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// TableStatus reports which required tables exist.
type TableStatus struct {
	Existing []string `json:"existingTables"`
	Missing  []string `json:"missingTables"`
}

// Initialized reports whether every required table exists.
func (s TableStatus) Initialized() bool { return len(s.Missing) == 0 }
