package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/trace"
)

const callColumns = `c.id, c.call_control_id, c.call_session_id, c.agent_id, c.customer_phone, c.agent_phone,
	c.direction, c.status, c.start_time, c.end_time, c.duration, c.recording_url, c.client_state,
	c.created_at, c.updated_at`

func scanCall(row scanner, extra ...any) (model.Call, error) {
	var (
		call                                 model.Call
		session, agent, customer, agentPhone sql.NullString
		direction, recording, clientState    sql.NullString
		start, end, created, updated         sql.NullString
		duration                             sql.NullInt64
	)
	dest := []any{
		&call.ID, &call.CallControlID, &session, &agent, &customer, &agentPhone,
		&direction, &call.Status, &start, &end, &duration, &recording, &clientState,
		&created, &updated,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Call{}, err
	}
	call.CallSessionID = session.String
	call.AgentID = agent.String
	call.CustomerPhone = customer.String
	call.AgentPhone = agentPhone.String
	call.Direction = direction.String
	call.RecordingURL = recording.String
	call.ClientState = clientState.String
	call.StartTime = parseTime(start)
	call.EndTime = parseTime(end)
	call.Duration = nullInt(duration)
	call.CreatedAt = requiredTime(created)
	call.UpdatedAt = requiredTime(updated)
	return call, nil
}

// UpsertCall inserts the call or refreshes its identity fields when the
// control id is already known. The status of an existing call is kept.
func (s *Store) UpsertCall(ctx context.Context, call model.Call) (_ model.Call, err error) {
	ctx, span := trace.StartSpan(ctx, "store.upsert_call", trace.WithAttr(trace.AttrStoreTable, "calls"))
	defer func() { trace.End(span, err) }()

	status := call.Status
	if status == "" {
		status = "initiated"
	}
	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls (call_control_id, call_session_id, agent_id, customer_phone, agent_phone,
			direction, status, start_time, client_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (call_control_id) DO UPDATE SET
			call_session_id = COALESCE(excluded.call_session_id, calls.call_session_id),
			agent_id = COALESCE(excluded.agent_id, calls.agent_id),
			customer_phone = COALESCE(excluded.customer_phone, calls.customer_phone),
			agent_phone = COALESCE(excluded.agent_phone, calls.agent_phone),
			direction = COALESCE(excluded.direction, calls.direction),
			start_time = COALESCE(excluded.start_time, calls.start_time),
			client_state = COALESCE(excluded.client_state, calls.client_state),
			updated_at = excluded.updated_at`,
		call.CallControlID, nullString(call.CallSessionID), nullString(call.AgentID),
		nullString(call.CustomerPhone), nullString(call.AgentPhone), nullString(call.Direction),
		status, nullTime(call.StartTime), nullString(call.ClientState), now, now)
	if err != nil {
		return model.Call{}, errors.Wrapf(err, "upsert call %s", call.CallControlID)
	}
	return s.GetCall(ctx, call.CallControlID)
}

// UpdateCallStatus sets the status of a call together with any non-zero
// fields of upd. A call seen for the first time is created.
func (s *Store) UpdateCallStatus(ctx context.Context, callControlID, status string, upd model.CallUpdate) (_ model.Call, err error) {
	ctx, span := trace.StartSpan(ctx, "store.update_call_status", trace.WithAttr(trace.AttrStoreTable, "calls"))
	defer func() { trace.End(span, err) }()

	now := formatTime(s.now())
	sets := []string{"status = excluded.status", "updated_at = excluded.updated_at"}
	if upd.EndTime != nil {
		sets = append(sets, "end_time = excluded.end_time")
	}
	if upd.Duration > 0 {
		sets = append(sets, "duration = excluded.duration")
	}
	if upd.RecordingURL != "" {
		sets = append(sets, "recording_url = excluded.recording_url")
	}

	var duration any
	if upd.Duration > 0 {
		duration = upd.Duration
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls (call_control_id, status, end_time, duration, recording_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (call_control_id) DO UPDATE SET `+strings.Join(sets, ", "),
		callControlID, status, nullTime(upd.EndTime), duration, nullString(upd.RecordingURL), now, now)
	if err != nil {
		return model.Call{}, errors.Wrapf(err, "update status of call %s", callControlID)
	}
	s.logger.Debug("call status updated", zap.String("call_control_id", callControlID), zap.String("status", status))
	return s.GetCall(ctx, callControlID)
}

// SaveCallHangup records a finished call. Duration is derived from the start
// and end times when both are known.
func (s *Store) SaveCallHangup(ctx context.Context, h model.Hangup) (_ model.Call, err error) {
	ctx, span := trace.StartSpan(ctx, "store.save_call_hangup", trace.WithAttr(trace.AttrStoreTable, "calls"))
	defer func() { trace.End(span, err) }()

	var duration any
	if h.StartTime != nil && h.EndTime != nil && h.EndTime.After(*h.StartTime) {
		duration = int(h.EndTime.Sub(*h.StartTime).Seconds())
	}
	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls (call_control_id, call_session_id, agent_id, customer_phone, agent_phone,
			status, start_time, end_time, duration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'completed', ?, ?, ?, ?, ?)
		ON CONFLICT (call_control_id) DO UPDATE SET
			call_session_id = COALESCE(excluded.call_session_id, calls.call_session_id),
			agent_id = COALESCE(calls.agent_id, excluded.agent_id),
			customer_phone = COALESCE(excluded.customer_phone, calls.customer_phone),
			agent_phone = COALESCE(excluded.agent_phone, calls.agent_phone),
			status = 'completed',
			start_time = COALESCE(calls.start_time, excluded.start_time),
			end_time = COALESCE(excluded.end_time, calls.end_time),
			duration = COALESCE(excluded.duration, calls.duration),
			updated_at = excluded.updated_at`,
		h.CallControlID, nullString(h.CallSessionID), nullString(h.AgentID), nullString(h.CustomerPhone),
		nullString(h.AgentPhone), nullTime(h.StartTime), nullTime(h.EndTime), duration, now, now)
	if err != nil {
		return model.Call{}, errors.Wrapf(err, "save hangup of call %s", h.CallControlID)
	}
	return s.GetCall(ctx, h.CallControlID)
}

// GetCall returns the call with the given control id.
func (s *Store) GetCall(ctx context.Context, callControlID string) (model.Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls c WHERE c.call_control_id = ?`, callControlID)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Call{}, ErrNotFound
	}
	if err != nil {
		return model.Call{}, errors.Wrapf(err, "get call %s", callControlID)
	}
	return call, nil
}

// GetCallWithTranscript returns the call joined with its latest transcript
// and coaching session.
func (s *Store) GetCallWithTranscript(ctx context.Context, callControlID string) (model.CallDetail, error) {
	call, err := s.GetCall(ctx, callControlID)
	if err != nil {
		return model.CallDetail{}, err
	}
	detail := model.CallDetail{Call: call}

	var (
		text       sql.NullString
		confidence sql.NullFloat64
		language   sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT transcript_text, confidence, language FROM transcripts
		WHERE call_control_id = ? ORDER BY id DESC LIMIT 1`, callControlID).Scan(&text, &confidence, &language)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return model.CallDetail{}, errors.Wrapf(err, "get transcript of call %s", callControlID)
	default:
		detail.TranscriptText = text.String
		detail.Confidence = nullFloat(confidence)
		detail.Language = language.String
	}

	var (
		content   string
		script    sql.NullString
		completed bool
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT coaching_content, avatar_script, completed FROM coaching_sessions
		WHERE call_control_id = ? ORDER BY id DESC LIMIT 1`, callControlID).Scan(&content, &script, &completed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return model.CallDetail{}, errors.Wrapf(err, "get coaching of call %s", callControlID)
	default:
		feedback, err := decodeFeedback(content)
		if err != nil {
			return model.CallDetail{}, err
		}
		detail.CoachingContent = &feedback
		detail.AvatarScript = script.String
		detail.CoachingCompleted = completed
	}
	return detail, nil
}

// RecentCalls lists the newest calls of an agent with their latest
// transcript text and coaching state.
func (s *Store) RecentCalls(ctx context.Context, agentID string, limit int) ([]model.CallDetail, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+callColumns+`,
			(SELECT t.transcript_text FROM transcripts t WHERE t.call_control_id = c.call_control_id ORDER BY t.id DESC LIMIT 1),
			(SELECT cs.completed FROM coaching_sessions cs WHERE cs.call_control_id = c.call_control_id ORDER BY cs.id DESC LIMIT 1)
		FROM calls c
		WHERE c.agent_id = ?
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "recent calls of %s", agentID)
	}
	defer rows.Close()

	calls := []model.CallDetail{}
	for rows.Next() {
		var (
			text      sql.NullString
			completed sql.NullBool
		)
		call, err := scanCall(rows, &text, &completed)
		if err != nil {
			return nil, errors.Wrap(err, "scan call")
		}
		calls = append(calls, model.CallDetail{
			Call:              call,
			TranscriptText:    text.String,
			CoachingCompleted: completed.Bool,
		})
	}
	return calls, errors.Wrap(rows.Err(), "recent calls")
}
