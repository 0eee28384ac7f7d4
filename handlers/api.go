package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/auth"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/relay"
	"github.com/mrsingh-rishi/callcoach/store"
)

type dialRequest struct {
	To string `json:"to"`
}

type insightsRequest struct {
	CallID            string `json:"callId"`
	CurrentTranscript string `json:"currentTranscript"`
	Context           string `json:"context"`
}

type generateRequest struct {
	CallID     string `json:"callId"`
	Transcript string `json:"transcript"`
	AgentID    string `json:"agentId"`
}

type sessionRequest struct {
	CallControlID   string                  `json:"call_control_id"`
	AgentID         string                  `json:"agent_id"`
	CoachingContent *model.CoachingFeedback `json:"coaching_content"`
	AvatarScript    string                  `json:"avatar_script"`
}

type tokenRequest struct {
	AgentID  string `json:"agentId"`
	Passcode string `json:"passcode"`
}

func (a *API) health(c *fiber.Ctx) error {
	state := a.deps.Relay.State()
	status, database, code := "ok", "healthy", fiber.StatusOK
	if err := a.deps.Store.Ping(c.UserContext()); err != nil {
		a.logger.Warn("database ping failed", zap.Error(err))
		status, database, code = "degraded", "unavailable", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"database":    database,
		"activeCall":  state.ActiveCall,
		"connections": state.ConnectionCount,
	})
}

func (a *API) callHistory(c *fiber.Ctx) error {
	agentID, limit := a.listParams(c)
	calls, err := a.deps.Store.RecentCalls(c.UserContext(), agentID, limit)
	if err != nil {
		a.logger.Error("call history query failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch call history", err)
	}
	return c.JSON(fiber.Map{"success": true, "calls": calls, "count": len(calls)})
}

func (a *API) getCall(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fail(c, fiber.StatusBadRequest, "Call control ID is required", nil)
	}
	detail, err := a.deps.Store.GetCallWithTranscript(c.UserContext(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Call not found", nil)
	case err != nil:
		a.logger.Error("call lookup failed", zap.String("call_control_id", id), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch call details", err)
	}
	return c.JSON(fiber.Map{"success": true, "call": detail})
}

func (a *API) getTranscript(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fail(c, fiber.StatusBadRequest, "Call control ID is required", nil)
	}
	transcript, err := a.deps.Store.GetTranscript(c.UserContext(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Transcript not found", nil)
	case err != nil:
		a.logger.Error("transcript lookup failed", zap.String("call_control_id", id), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch transcript", err)
	}
	return c.JSON(fiber.Map{"success": true, "transcript": transcript})
}

// dialCall places an outbound call whose audio is handled like an inbound one.
func (a *API) dialCall(c *fiber.Ctx) error {
	if a.deps.Dialer == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Outbound calling is not configured", nil)
	}
	var req dialRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON", err)
	}
	if req.To == "" {
		return fail(c, fiber.StatusBadRequest, "`to` field is required", nil)
	}
	sid, err := a.deps.Dialer.Dial(req.To)
	if err != nil {
		a.logger.Error("outbound call failed", zap.String("to", req.To), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "failed to create call", err)
	}
	return c.JSON(fiber.Map{"success": true, "sid": sid, "message": "call initiated"})
}

func (a *API) callInsights(c *fiber.Ctx) error {
	var req insightsRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON", err)
	}
	if req.CurrentTranscript == "" {
		return fail(c, fiber.StatusBadRequest, "Transcript is required", nil)
	}
	insights := a.deps.Coach.GenerateInsights(c.UserContext(), req.CurrentTranscript, req.Context)
	return c.JSON(fiber.Map{
		"success":   true,
		"callId":    req.CallID,
		"insights":  insights,
		"timestamp": time.Now().UTC().Format(relay.TimestampLayout),
	})
}

func (a *API) listCoaching(c *fiber.Ctx) error {
	agentID, limit := a.listParams(c)
	sessions, err := a.deps.Store.CoachingSessions(c.UserContext(), agentID, limit)
	if err != nil {
		a.logger.Error("coaching session query failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch coaching sessions", err)
	}
	return c.JSON(fiber.Map{"success": true, "sessions": sessions, "count": len(sessions)})
}

func (a *API) createCoaching(c *fiber.Ctx) error {
	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON", err)
	}
	if req.CallControlID == "" || req.AgentID == "" || req.CoachingContent == nil {
		return fail(c, fiber.StatusBadRequest, "call_control_id, agent_id, and coaching_content are required", nil)
	}
	script := req.AvatarScript
	if script == "" {
		script = req.CoachingContent.AvatarScript
	}
	session, err := a.deps.Store.SaveCoachingSession(c.UserContext(), model.CoachingSession{
		CallControlID:   req.CallControlID,
		AgentID:         req.AgentID,
		CoachingContent: *req.CoachingContent,
		AvatarScript:    script,
	})
	if err != nil {
		a.logger.Error("coaching session not saved", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to create coaching session", err)
	}
	return c.JSON(fiber.Map{"success": true, "session": session})
}

func (a *API) completeCoaching(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid session id", err)
	}
	err = a.deps.Store.CompleteCoachingSession(c.UserContext(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Coaching session not found", nil)
	case err != nil:
		return fail(c, fiber.StatusInternalServerError, "Failed to complete coaching session", err)
	}
	return c.JSON(fiber.Map{"success": true, "id": id, "completed": true})
}

// generateCoaching returns feedback for a transcript without storing it.
func (a *API) generateCoaching(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON", err)
	}
	if req.Transcript == "" {
		return fail(c, fiber.StatusBadRequest, "Transcript is required", nil)
	}
	feedback, err := a.deps.Coach.GenerateFeedback(c.UserContext(), req.Transcript)
	if err != nil {
		a.logger.Error("coaching generation failed", zap.String("call_id", req.CallID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to generate coaching session", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"coachingSession": model.GeneratedSession{
			ID:        "coaching_" + uuid.NewString(),
			CallID:    req.CallID,
			AgentID:   req.AgentID,
			Feedback:  feedback,
			CreatedAt: time.Now().UTC(),
		},
	})
}

func (a *API) initStatus(c *fiber.Ctx) error {
	tables, err := a.deps.Store.Tables(c.UserContext())
	if err != nil {
		a.logger.Error("table check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":    false,
			"connection": "failed",
			"error":      err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"connection":     "healthy",
		"existingTables": tables.Existing,
		"missingTables":  tables.Missing,
		"isInitialized":  tables.Initialized(),
	})
}

func (a *API) initDatabase(c *fiber.Ctx) error {
	if err := a.deps.Store.Init(c.UserContext()); err != nil {
		a.logger.Error("database init failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to initialize database", err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Database initialized successfully"})
}

func (a *API) issueToken(c *fiber.Ctx) error {
	if !a.deps.Issuer.Enabled() {
		return fail(c, fiber.StatusNotFound, "Agent tokens are not enabled", nil)
	}
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON", err)
	}
	if req.AgentID == "" {
		return fail(c, fiber.StatusBadRequest, "agentId is required", nil)
	}
	if !auth.CheckPasscode(a.opts.AgentPasscode, req.Passcode) {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized", nil)
	}
	token, expires, err := a.deps.Issuer.Issue(req.AgentID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to issue token", err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"token":     token,
		"agentId":   req.AgentID,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}
