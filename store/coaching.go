package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/trace"
)

// SaveCoachingSession stores generated feedback for a call. The avatar
// script defaults to the one inside the feedback.
func (s *Store) SaveCoachingSession(ctx context.Context, cs model.CoachingSession) (_ model.CoachingSession, err error) {
	ctx, span := trace.StartSpan(ctx, "store.save_coaching_session", trace.WithAttr(trace.AttrStoreTable, "coaching_sessions"))
	defer func() { trace.End(span, err) }()

	if cs.CallControlID == "" || cs.AgentID == "" {
		return model.CoachingSession{}, errors.New("coaching session needs call and agent ids")
	}
	if cs.AvatarScript == "" {
		cs.AvatarScript = cs.CoachingContent.AvatarScript
	}
	content, err := json.Marshal(cs.CoachingContent)
	if err != nil {
		return model.CoachingSession{}, errors.Wrap(err, "encode coaching content")
	}
	cs.CreatedAt = s.now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coaching_sessions (call_control_id, agent_id, coaching_content, avatar_script, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cs.CallControlID, cs.AgentID, string(content), nullString(cs.AvatarScript), cs.Completed, formatTime(cs.CreatedAt))
	if err != nil {
		return model.CoachingSession{}, errors.Wrapf(err, "save coaching session of call %s", cs.CallControlID)
	}
	if cs.ID, err = res.LastInsertId(); err != nil {
		return model.CoachingSession{}, errors.Wrap(err, "coaching session id")
	}
	return cs, nil
}

// CompleteCoachingSession marks a session as delivered to the agent.
func (s *Store) CompleteCoachingSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE coaching_sessions SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "complete coaching session %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CoachingSessions lists an agent's newest sessions with call context.
func (s *Store) CoachingSessions(ctx context.Context, agentID string, limit int) ([]model.CoachingSession, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.id, cs.call_control_id, cs.agent_id, cs.coaching_content, cs.avatar_script, cs.completed, cs.created_at,
			c.customer_phone, c.agent_phone, c.start_time, c.duration,
			(SELECT t.transcript_text FROM transcripts t WHERE t.call_control_id = cs.call_control_id ORDER BY t.id DESC LIMIT 1)
		FROM coaching_sessions cs
		LEFT JOIN calls c ON cs.call_control_id = c.call_control_id
		WHERE cs.agent_id = ?
		ORDER BY cs.created_at DESC, cs.id DESC
		LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "coaching sessions of %s", agentID)
	}
	defer rows.Close()

	sessions := []model.CoachingSession{}
	for rows.Next() {
		var (
			cs                   model.CoachingSession
			content              string
			script, created      sql.NullString
			customer, agentPhone sql.NullString
			start, text          sql.NullString
			duration             sql.NullInt64
		)
		if err := rows.Scan(&cs.ID, &cs.CallControlID, &cs.AgentID, &content, &script, &cs.Completed, &created,
			&customer, &agentPhone, &start, &duration, &text); err != nil {
			return nil, errors.Wrap(err, "scan coaching session")
		}
		if cs.CoachingContent, err = decodeFeedback(content); err != nil {
			return nil, err
		}
		cs.AvatarScript = script.String
		cs.CreatedAt = requiredTime(created)
		cs.CustomerPhone = customer.String
		cs.AgentPhone = agentPhone.String
		cs.StartTime = parseTime(start)
		cs.Duration = nullInt(duration)
		cs.TranscriptText = text.String
		sessions = append(sessions, cs)
	}
	return sessions, errors.Wrap(rows.Err(), "coaching sessions")
}

func decodeFeedback(content string) (model.CoachingFeedback, error) {
	var f model.CoachingFeedback
	if err := json.Unmarshal([]byte(content), &f); err != nil {
		return model.CoachingFeedback{}, errors.Wrap(err, "decode coaching content")
	}
	return f, nil
}
