package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/trace"
)

// SaveTranscript stores a finished transcript for a call.
func (s *Store) SaveTranscript(ctx context.Context, t model.Transcript) (_ model.Transcript, err error) {
	ctx, span := trace.StartSpan(ctx, "store.save_transcript", trace.WithAttr(trace.AttrStoreTable, "transcripts"))
	defer func() { trace.End(span, err) }()

	if t.CallControlID == "" {
		return model.Transcript{}, errors.New("transcript without call id")
	}
	if t.Language == "" {
		t.Language = "en"
	}
	t.CreatedAt = s.now()

	var labels any
	if len(t.SpeakerLabels) > 0 {
		labels = string(t.SpeakerLabels)
	}
	var confidence any
	if t.Confidence != nil {
		confidence = *t.Confidence
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (call_control_id, transcript_text, confidence, language, speaker_labels, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.CallControlID, t.TranscriptText, confidence, t.Language, labels, formatTime(t.CreatedAt))
	if err != nil {
		return model.Transcript{}, errors.Wrapf(err, "save transcript of call %s", t.CallControlID)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return model.Transcript{}, errors.Wrap(err, "transcript id")
	}
	return t, nil
}

// GetTranscript returns the latest transcript of a call joined with the
// call's parties and timing.
func (s *Store) GetTranscript(ctx context.Context, callControlID string) (model.TranscriptView, error) {
	var (
		view                 model.TranscriptView
		confidence           sql.NullFloat64
		labels               sql.NullString
		created              sql.NullString
		customer, agentPhone sql.NullString
		start, end           sql.NullString
		duration             sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.call_control_id, t.transcript_text, t.confidence, t.language, t.speaker_labels, t.created_at,
			c.customer_phone, c.agent_phone, c.start_time, c.end_time, c.duration
		FROM transcripts t
		LEFT JOIN calls c ON t.call_control_id = c.call_control_id
		WHERE t.call_control_id = ?
		ORDER BY t.id DESC LIMIT 1`, callControlID).Scan(
		&view.ID, &view.CallControlID, &view.TranscriptText, &confidence, &view.Language, &labels, &created,
		&customer, &agentPhone, &start, &end, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TranscriptView{}, ErrNotFound
	}
	if err != nil {
		return model.TranscriptView{}, errors.Wrapf(err, "get transcript of call %s", callControlID)
	}

	view.Confidence = nullFloat(confidence)
	if labels.Valid && labels.String != "" {
		view.SpeakerLabels = json.RawMessage(labels.String)
	}
	view.CreatedAt = requiredTime(created)
	view.CustomerPhone = customer.String
	view.AgentPhone = agentPhone.String
	view.StartTime = parseTime(start)
	view.EndTime = parseTime(end)
	view.Duration = nullInt(duration)
	return view, nil
}

// LogCallEvent appends a raw provider event to call_logs.
func (s *Store) LogCallEvent(ctx context.Context, callControlID, eventType string, data any) (err error) {
	ctx, span := trace.StartSpan(ctx, "store.log_call_event", trace.WithAttr(trace.AttrStoreTable, "call_logs"))
	defer func() { trace.End(span, err) }()

	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_logs (call_control_id, event_type, event_data, timestamp) VALUES (?, ?, ?, ?)`,
		callControlID, eventType, string(payload), formatTime(s.now()))
	return errors.Wrapf(err, "log %s for call %s", eventType, callControlID)
}

// CallLogs returns the logged events of a call, oldest first.
func (s *Store) CallLogs(ctx context.Context, callControlID string) ([]model.CallLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_control_id, event_type, event_data, timestamp
		FROM call_logs WHERE call_control_id = ? ORDER BY id`, callControlID)
	if err != nil {
		return nil, errors.Wrapf(err, "call logs of %s", callControlID)
	}
	defer rows.Close()

	logs := []model.CallLog{}
	for rows.Next() {
		var (
			entry model.CallLog
			data  sql.NullString
			ts    sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.CallControlID, &entry.EventType, &data, &ts); err != nil {
			return nil, errors.Wrap(err, "scan call log")
		}
		if data.Valid {
			entry.EventData = json.RawMessage(data.String)
		}
		entry.Timestamp = requiredTime(ts)
		logs = append(logs, entry)
	}
	return logs, errors.Wrap(rows.Err(), "call logs")
}
