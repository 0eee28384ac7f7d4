// Package handlers exposes the service over HTTP: provider webhooks, the
// live transcript push channel and the dashboard REST API.
package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/auth"
	"github.com/mrsingh-rishi/callcoach/call"
	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/output"
	"github.com/mrsingh-rishi/callcoach/relay"
	"github.com/mrsingh-rishi/callcoach/telephony"
)

// Store is the persistence behind the dashboard API.
type Store interface {
	Init(ctx context.Context) error
	Tables(ctx context.Context) (model.TableStatus, error)
	Ping(ctx context.Context) error
	GetCallWithTranscript(ctx context.Context, callControlID string) (model.CallDetail, error)
	RecentCalls(ctx context.Context, agentID string, limit int) ([]model.CallDetail, error)
	GetTranscript(ctx context.Context, callControlID string) (model.TranscriptView, error)
	SaveCoachingSession(ctx context.Context, s model.CoachingSession) (model.CoachingSession, error)
	CompleteCoachingSession(ctx context.Context, id int64) error
	CoachingSessions(ctx context.Context, agentID string, limit int) ([]model.CoachingSession, error)
}

// Coach generates coaching feedback and live insights.
type Coach interface {
	GenerateFeedback(ctx context.Context, transcript string) (model.CoachingFeedback, error)
	GenerateInsights(ctx context.Context, transcript, extra string) model.Insights
}

// Dialer places outbound calls.
type Dialer interface {
	Dial(to string) (string, error)
}

// Deps are the collaborators of the HTTP surface. Dialer, Validator and
// StreamDialer are optional.
type Deps struct {
	Store        Store
	Relay        *relay.Relay
	Ingress      *call.Ingress
	Coach        Coach
	Issuer       *auth.Issuer
	Dialer       Dialer
	Validator    *telephony.Validator
	StreamDialer call.StreamDialer
}

// Options are the settings the handlers read.
type Options struct {
	// PublicBaseURL prefixes the callback URLs handed to the provider.
	PublicBaseURL string
	// PublicWSURL prefixes the media stream URL. Empty disables streaming.
	PublicWSURL       string
	DefaultAgentID    string
	AgentPasscode     string
	HeartbeatInterval time.Duration
	SinkBacklog       int
}

// API serves every route of the service.
type API struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	// ctx bounds long-lived push connections; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(deps Deps, opts Options, l *zap.Logger) *API {
	if opts.DefaultAgentID == "" {
		opts.DefaultAgentID = "agent_001"
	}
	if deps.Issuer == nil {
		deps.Issuer = auth.NewIssuer("", 0)
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	opts.PublicWSURL = strings.TrimRight(opts.PublicWSURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	return &API{
		deps:   deps,
		opts:   opts,
		logger: logger.Or(l).Named("http"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close ends every open push connection. Call it before shutting the
// server down so streaming responses can finish.
func (a *API) Close() {
	a.cancel()
}

// Register mounts the routes on app.
func (a *API) Register(app *fiber.App) {
	app.Get("/health", a.health)

	hooks := app.Group("/api/webhooks/telnyx")
	hooks.Post("/", a.verified(a.genericWebhook))
	hooks.Post("/call-control", a.callControl)
	hooks.Post("/call-status", a.verified(a.callStatus))
	hooks.Post("/transcription", a.verified(a.transcription))
	hooks.Post("/inbound", a.verified(a.inbound))
	hooks.Post("/transcript-ready", a.transcriptReady)
	hooks.Post("/call-completed", a.callCompleted)

	app.Use(telephony.MediaStreamPath, requireUpgrade)
	app.Get(telephony.MediaStreamPath, a.mediaStream())

	guard := a.deps.Issuer.Middleware()

	app.Get("/api/transcripts/stream", guard, a.transcriptStream)
	app.Use("/api/transcripts/ws", requireUpgrade)
	app.Get("/api/transcripts/ws", guard, a.transcriptSocket())
	app.Get("/api/transcripts/state", guard, a.relayState)
	app.Get("/api/transcripts/:id", guard, a.getTranscript)

	calls := app.Group("/api/calls", guard)
	calls.Get("/history", a.callHistory)
	calls.Post("/insights", a.callInsights)
	calls.Post("/", a.dialCall)
	calls.Get("/:id", a.getCall)

	coaching := app.Group("/api/coaching", guard)
	coaching.Get("/sessions", a.listCoaching)
	coaching.Post("/sessions", a.createCoaching)
	coaching.Post("/sessions/:id/complete", a.completeCoaching)
	coaching.Post("/generate", a.generateCoaching)

	app.Get("/api/init", guard, a.initStatus)
	app.Post("/api/init", guard, a.initDatabase)
	app.Post("/api/auth/token", a.issueToken)
}

func (a *API) sinkOptions() []output.Option {
	var opts []output.Option
	if a.opts.HeartbeatInterval > 0 {
		opts = append(opts, output.WithHeartbeat(a.opts.HeartbeatInterval))
	}
	if a.opts.SinkBacklog > 0 {
		opts = append(opts, output.WithBacklog(a.opts.SinkBacklog))
	}
	return opts
}

// fail writes the JSON error body shared by every endpoint.
func fail(c *fiber.Ctx, status int, msg string, err error) error {
	body := fiber.Map{"success": false, "error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// say answers a provider request with spoken TeXML.
func say(c *fiber.Ctx, status int, text string) error {
	doc, err := telephony.SayResponse(text)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, text, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	return c.Status(status).SendString(doc)
}

func wantsXML(c *fiber.Ctx) bool {
	return call.IsXML(c.Get(fiber.HeaderContentType))
}

// listParams reads the agent_id and limit query parameters.
func (a *API) listParams(c *fiber.Ctx) (string, int) {
	// a token pins the agent; the query only picks one on an open API
	agentID := auth.AgentFrom(c)
	if agentID == "" {
		agentID = c.Query("agent_id")
	}
	if agentID == "" {
		agentID = a.opts.DefaultAgentID
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	return agentID, limit
}
