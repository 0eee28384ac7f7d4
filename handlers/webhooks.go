package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/call"
	"github.com/mrsingh-rishi/callcoach/telephony"
	"github.com/mrsingh-rishi/callcoach/types"
)

// verified rejects form webhooks whose provider signature does not match.
// It is a pass-through when no validator is configured.
func (a *API) verified(next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a.deps.Validator == nil || !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationForm) {
			return next(c)
		}
		fields, err := call.ParseFields(fiber.MIMEApplicationForm, c.Body())
		if err != nil || !a.deps.Validator.Validate(c.OriginalURL(), fields, c.Get(telephony.SignatureHeader)) {
			a.logger.Warn("webhook signature rejected", zap.String("path", c.Path()))
			return fail(c, fiber.StatusForbidden, "Invalid signature", nil)
		}
		return next(c)
	}
}

func (a *API) fields(c *fiber.Ctx) (map[string]string, error) {
	return call.ParseFields(c.Get(fiber.HeaderContentType), c.Body())
}

// callControl always acknowledges so the provider does not retry; failures
// are logged.
func (a *API) callControl(c *fiber.Ctx) error {
	var env types.CallControlEnvelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		a.logger.Warn("malformed call-control webhook", zap.Error(err))
		return c.JSON(fiber.Map{"success": true, "message": "Webhook received"})
	}

	ev := env.Data
	if err := a.deps.Ingress.HandleEvent(c.UserContext(), ev); err != nil {
		a.logger.Error("call-control event failed",
			zap.String("event_type", ev.EventType),
			zap.String("call_control_id", ev.Payload.CallControlID),
			zap.Error(err))
	}
	return c.JSON(fiber.Map{"success": true, "message": "Webhook received", "eventType": ev.EventType})
}

func (a *API) genericWebhook(c *fiber.Ctx) error {
	fields, err := a.fields(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Failed to process webhook", err)
	}
	kind := call.Classify(fields)
	a.logger.Debug("webhook classified", zap.String("kind", string(kind)))

	switch kind {
	case call.KindInbound:
		return a.applyInbound(c, fields)
	case call.KindTranscription:
		return a.applyTranscription(c, fields)
	case call.KindCallStatus:
		return a.applyStatus(c, fields)
	default:
		return c.JSON(fiber.Map{"success": true, "message": "Webhook received"})
	}
}

func (a *API) callStatus(c *fiber.Ctx) error {
	fields, err := a.fields(c)
	if err != nil {
		return a.statusFailed(c, err)
	}
	return a.applyStatus(c, fields)
}

func (a *API) applyStatus(c *fiber.Ctx, fields map[string]string) error {
	s := call.StatusFromFields(fields)
	if err := a.deps.Ingress.HandleStatus(c.UserContext(), s); err != nil {
		return a.statusFailed(c, err)
	}
	if wantsXML(c) {
		return say(c, fiber.StatusOK, "Call status received.")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Call status processed successfully",
		"callId":  s.CallID(),
		"status":  s.Status,
	})
}

func (a *API) statusFailed(c *fiber.Ctx, err error) error {
	a.logger.Error("call status webhook failed", zap.Error(err))
	if wantsXML(c) {
		return say(c, fiber.StatusInternalServerError, "Error processing call status.")
	}
	return fail(c, fiber.StatusInternalServerError, "Failed to process call status webhook", err)
}

func (a *API) transcription(c *fiber.Ctx) error {
	fields, err := a.fields(c)
	if err != nil {
		return a.transcriptionFailed(c, err)
	}
	return a.applyTranscription(c, fields)
}

func (a *API) applyTranscription(c *fiber.Ctx, fields map[string]string) error {
	t := call.TranscriptionFromFields(fields)
	if err := a.deps.Ingress.HandleTranscription(c.UserContext(), t); err != nil {
		return a.transcriptionFailed(c, err)
	}
	if wantsXML(c) {
		return say(c, fiber.StatusOK, "Transcription received and coaching generated.")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Transcription processed successfully",
		"callId":  t.CallSid,
	})
}

func (a *API) transcriptionFailed(c *fiber.Ctx, err error) error {
	a.logger.Error("transcription webhook failed", zap.Error(err))
	if wantsXML(c) {
		return say(c, fiber.StatusInternalServerError, "Error processing transcription.")
	}
	return fail(c, fiber.StatusInternalServerError, "Failed to process transcription webhook", err)
}

type readyEnvelope struct {
	Data struct {
		CallControlID  string `json:"call_control_id"`
		TranscriptText string `json:"transcript_text"`
		Transcript     string `json:"transcript"`
	} `json:"data"`
}

// transcriptReady accepts a finished transcript pushed as call-control JSON.
func (a *API) transcriptReady(c *fiber.Ctx) error {
	var env readyEnvelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		return fail(c, fiber.StatusBadRequest, "Failed to process transcript webhook", err)
	}
	text := env.Data.TranscriptText
	if text == "" {
		text = env.Data.Transcript
	}
	err := a.deps.Ingress.HandleTranscription(c.UserContext(), types.RecordingTranscription{
		CallSid:    env.Data.CallControlID,
		Transcript: text,
	})
	if err != nil {
		a.logger.Error("transcript-ready webhook failed", zap.String("call_control_id", env.Data.CallControlID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to process transcript webhook", err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Transcript processed"})
}

type completedEnvelope struct {
	Data struct {
		CallControlID string  `json:"call_control_id"`
		EndTime       string  `json:"end_time"`
		Duration      float64 `json:"duration"`
		RecordingURL  string  `json:"recording_url"`
	} `json:"data"`
}

// callCompleted ends a call reported through the completion webhook.
func (a *API) callCompleted(c *fiber.Ctx) error {
	var env completedEnvelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		return fail(c, fiber.StatusBadRequest, "Failed to process webhook", err)
	}
	err := a.deps.Ingress.HandleStatus(c.UserContext(), types.CallStatus{
		CallSid:      env.Data.CallControlID,
		Status:       types.StatusCompleted,
		Duration:     int(env.Data.Duration),
		EndTime:      env.Data.EndTime,
		RecordingURL: env.Data.RecordingURL,
	})
	if err != nil {
		a.logger.Error("call-completed webhook failed", zap.String("call_control_id", env.Data.CallControlID), zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to process webhook", err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Call completion processed"})
}

func (a *API) inbound(c *fiber.Ctx) error {
	fields, err := a.fields(c)
	if err != nil {
		a.logger.Warn("unparseable inbound webhook", zap.Error(err))
		fields = map[string]string{}
	}
	return a.applyInbound(c, fields)
}

// applyInbound answers a new call with recording instructions. A failed
// store write does not keep the call from being answered.
func (a *API) applyInbound(c *fiber.Ctx, fields map[string]string) error {
	id, err := a.deps.Ingress.HandleInbound(c.UserContext(), fields)
	if err != nil {
		a.logger.Error("inbound call not registered", zap.String("call_id", id), zap.Error(err))
	}

	opts := telephony.InboundOptions{StreamURL: a.streamURL()}
	if a.opts.PublicBaseURL != "" {
		opts.TranscriptionCallback = a.opts.PublicBaseURL + telephony.TranscriptionPath
	}
	doc, err := telephony.InboundResponse(opts)
	if err != nil {
		a.logger.Error("inbound response not rendered", zap.Error(err))
		return say(c, fiber.StatusInternalServerError, "Error processing call.")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	return c.SendString(doc)
}

func (a *API) streamURL() string {
	if a.opts.PublicWSURL == "" || a.deps.StreamDialer == nil {
		return ""
	}
	return a.opts.PublicWSURL + telephony.MediaStreamPath
}
