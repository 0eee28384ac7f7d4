package handlers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/auth"
	"github.com/mrsingh-rishi/callcoach/call"
	"github.com/mrsingh-rishi/callcoach/handlers"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/relay"
	"github.com/mrsingh-rishi/callcoach/store"
	"github.com/mrsingh-rishi/callcoach/telephony"
	"github.com/mrsingh-rishi/callcoach/workers"
)

type jobLog struct {
	mu   sync.Mutex
	jobs []workers.CoachingJob
}

func (l *jobLog) Submit(job workers.CoachingJob) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
	return nil
}

func (l *jobLog) snapshot() []workers.CoachingJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]workers.CoachingJob(nil), l.jobs...)
}

type fakeCoach struct {
	feedback model.CoachingFeedback
	err      error
}

func (f *fakeCoach) GenerateFeedback(context.Context, string) (model.CoachingFeedback, error) {
	return f.feedback, f.err
}

func (f *fakeCoach) GenerateInsights(context.Context, string, string) model.Insights {
	return model.FallbackInsights()
}

type fakeDialer struct{ to []string }

func (d *fakeDialer) Dial(to string) (string, error) {
	d.to = append(d.to, to)
	return "CA_out", nil
}

type env struct {
	app   *fiber.App
	api   *handlers.API
	store *store.Store
	relay *relay.Relay
	jobs  *jobLog
	coach *fakeCoach
}

func newEnv(t *testing.T, configure ...func(*handlers.Deps, *handlers.Options)) *env {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "calls.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Init(ctx))
	t.Cleanup(func() { _ = st.Close() })

	e := &env{
		store: st,
		relay: relay.New(relay.WithLogger(zap.NewNop())),
		jobs:  &jobLog{},
		coach: &fakeCoach{},
	}
	deps := handlers.Deps{
		Store:   st,
		Relay:   e.relay,
		Ingress: call.NewIngress(st, e.relay, e.jobs, call.WithLogger(zap.NewNop())),
		Coach:   e.coach,
	}
	opts := handlers.Options{HeartbeatInterval: 50 * time.Millisecond}
	for _, fn := range configure {
		fn(&deps, &opts)
	}

	e.api = handlers.New(deps, opts, zap.NewNop())
	e.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	e.api.Register(e.app)
	t.Cleanup(e.api.Close)
	return e
}

func (e *env) do(t *testing.T, method, target, contentType, body string, headers ...string) (int, http.Header, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header, data
}

func (e *env) doJSON(t *testing.T, method, target, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	contentType := ""
	if body != "" {
		contentType = fiber.MIMEApplicationJSON
	}
	status, _, data := e.do(t, method, target, contentType, body, headers...)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return status, out
}

func callControl(eventType, payload string) string {
	return `{"data":{"event_type":"` + eventType + `","payload":` + payload + `}}`
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	status, body := e.doJSON(t, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "healthy", body["database"])
}

func TestCallControlWebhooksDriveRelayAndStore(t *testing.T) {
	e := newEnv(t)
	ids := `"call_control_id":"cc_1","call_session_id":"sess_1"`

	status, body := e.doJSON(t, "POST", "/api/webhooks/telnyx/call-control",
		callControl("call.initiated", `{`+ids+`,"from":"+15550001","to":"+15550002","direction":"incoming"}`))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "call.initiated", body["eventType"])

	e.doJSON(t, "POST", "/api/webhooks/telnyx/call-control", callControl("call.answered", `{`+ids+`}`))
	e.doJSON(t, "POST", "/api/webhooks/telnyx/call-control", callControl("call.transcription",
		`{`+ids+`,"transcription_data":{"transcript":"Hello there","is_final":true,"transcription_track":"inbound"}}`))

	_, body = e.doJSON(t, "GET", "/api/transcripts/state", "")
	state := body["state"].(map[string]any)
	assert.Equal(t, "sess_1", state["activeCall"])
	assert.Equal(t, "\nCustomer: Hello there", state["transcript"])

	_, body = e.doJSON(t, "GET", "/api/calls/cc_1", "")
	assert.Equal(t, "answered", body["call"].(map[string]any)["status"])

	e.doJSON(t, "POST", "/api/webhooks/telnyx/call-control", callControl("call.hangup", `{`+ids+`}`))
	assert.Nil(t, e.relay.State().ActiveCall)

	_, body = e.doJSON(t, "GET", "/api/calls/cc_1", "")
	assert.Equal(t, "completed", body["call"].(map[string]any)["status"])

	logs, err := e.store.CallLogs(context.Background(), "cc_1")
	require.NoError(t, err)
	assert.Len(t, logs, 4)
}

func TestCallControlAlwaysAcknowledges(t *testing.T) {
	e := newEnv(t)
	status, body := e.doJSON(t, "POST", "/api/webhooks/telnyx/call-control", "{broken")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestCallStatusWebhook(t *testing.T) {
	e := newEnv(t)

	status, _, data := e.do(t, "POST", "/api/webhooks/telnyx/call-status", fiber.MIMEApplicationForm,
		"CallSid=CA_child&ParentCallSid=CA1&CallStatus=in-progress")
	require.Equal(t, fiber.StatusOK, status)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "CA1", body["callId"])
	assert.Equal(t, "in-progress", body["status"])
	assert.Equal(t, "CA1", e.relay.State().ActiveCallID())

	status, header, data := e.do(t, "POST", "/api/webhooks/telnyx/call-status", "application/xml",
		`<Request><CallSid>CA1</CallSid><CallStatus>completed</CallStatus><CallDuration>30</CallDuration></Request>`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, header.Get("Content-Type"), "xml")
	assert.Contains(t, string(data), "Call status received.")
	assert.Nil(t, e.relay.State().ActiveCall)

	c, err := e.store.GetCall(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "completed", c.Status)
	require.NotNil(t, c.Duration)
	assert.Equal(t, 30, *c.Duration)
}

func TestTranscriptionWebhook(t *testing.T) {
	e := newEnv(t)

	status, body := func() (int, map[string]any) {
		s, _, data := e.do(t, "POST", "/api/webhooks/telnyx/transcription", fiber.MIMEApplicationForm,
			"CallSid=CA7&TranscriptionText=hello+there")
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return s, out
	}()
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "CA7", body["callId"])

	jobs := e.jobs.snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, "hello there", jobs[0].Transcript)

	_, body = e.doJSON(t, "GET", "/api/transcripts/CA7", "")
	assert.Equal(t, "hello there", body["transcript"].(map[string]any)["transcript_text"])
}

func TestTranscriptionWebhookXMLError(t *testing.T) {
	e := newEnv(t)
	status, header, data := e.do(t, "POST", "/api/webhooks/telnyx/transcription", "text/xml",
		`<Response><TranscriptionText>orphan</TranscriptionText></Response>`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Contains(t, header.Get("Content-Type"), "xml")
	assert.Contains(t, string(data), "Error processing transcription.")
}

func TestInboundWebhook(t *testing.T) {
	e := newEnv(t, func(d *handlers.Deps, o *handlers.Options) {
		o.PublicBaseURL = "https://coach.example.com/"
		o.PublicWSURL = "wss://coach.example.com"
		d.StreamDialer = func(context.Context, string) (call.TranscriptStream, error) {
			return nil, errors.New("unused")
		}
	})

	status, header, data := e.do(t, "POST", "/api/webhooks/telnyx/inbound", fiber.MIMEApplicationForm,
		"CallSid=CA9&From=%2B15550001&To=%2B15550002")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, header.Get("Content-Type"), "xml")
	doc := string(data)
	assert.Contains(t, doc, "<Record")
	assert.Contains(t, doc, "wss://coach.example.com/api/media-stream")
	assert.Contains(t, doc, "https://coach.example.com/api/webhooks/telnyx/transcription")

	c, err := e.store.GetCall(context.Background(), "CA9")
	require.NoError(t, err)
	assert.Equal(t, "ringing", c.Status)
	assert.Equal(t, "inbound", c.Direction)
	assert.Equal(t, "+15550001", c.CustomerPhone)
}

func TestGenericWebhookDispatch(t *testing.T) {
	e := newEnv(t)

	status, body := e.doJSON(t, "POST", "/api/webhooks/telnyx", `{"CallSid":"CA3","transcript_text":"generic words"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Transcription processed successfully", body["message"])

	_, _, data := e.do(t, "POST", "/api/webhooks/telnyx", "text/plain", "ping")
	assert.Contains(t, string(data), "Webhook received")
}

func TestTranscriptReadyAndCallCompleted(t *testing.T) {
	e := newEnv(t)
	e.relay.SetActiveCall("cc_9")

	status, body := e.doJSON(t, "POST", "/api/webhooks/telnyx/transcript-ready",
		`{"data":{"call_control_id":"cc_9","transcript":"thanks for waiting"}}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Transcript processed", body["message"])
	jobs := e.jobs.snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, "cc_9", jobs[0].CallControlID)
	assert.Equal(t, "thanks for waiting", jobs[0].Transcript)

	status, body = e.doJSON(t, "POST", "/api/webhooks/telnyx/call-completed",
		`{"data":{"call_control_id":"cc_9","duration":42}}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Call completion processed", body["message"])
	assert.Nil(t, e.relay.State().ActiveCall)

	c, err := e.store.GetCall(context.Background(), "cc_9")
	require.NoError(t, err)
	assert.Equal(t, "completed", c.Status)
	require.NotNil(t, c.Duration)
	assert.Equal(t, 42, *c.Duration)

	status, _ = e.doJSON(t, "POST", "/api/webhooks/telnyx/call-completed", `{"data":{}}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignature(t *testing.T) {
	e := newEnv(t, func(d *handlers.Deps, _ *handlers.Options) {
		d.Validator = telephony.NewValidator("tok", "https://coach.example.com")
	})
	form := "CallSid=CA1&CallStatus=ringing"

	status, _, _ := e.do(t, "POST", "/api/webhooks/telnyx/call-status", fiber.MIMEApplicationForm, form)
	assert.Equal(t, fiber.StatusForbidden, status)

	sig := sign("tok", "https://coach.example.com/api/webhooks/telnyx/call-status",
		map[string]string{"CallSid": "CA1", "CallStatus": "ringing"})
	status, _, _ = e.do(t, "POST", "/api/webhooks/telnyx/call-status", fiber.MIMEApplicationForm, form,
		telephony.SignatureHeader, sig)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestCallLookups(t *testing.T) {
	e := newEnv(t)

	status, body := e.doJSON(t, "GET", "/api/calls/missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Call not found", body["error"])

	status, _ = e.doJSON(t, "GET", "/api/transcripts/missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	e.do(t, "POST", "/api/webhooks/telnyx/inbound", fiber.MIMEApplicationForm, "CallSid=CA1")
	status, body = e.doJSON(t, "GET", "/api/calls/history?limit=5", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
}

func TestCoachingSessions(t *testing.T) {
	e := newEnv(t)

	status, body := e.doJSON(t, "POST", "/api/coaching/sessions", `{"call_control_id":"cc_5"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = e.doJSON(t, "POST", "/api/coaching/sessions",
		`{"call_control_id":"cc_5","agent_id":"agent_001","coaching_content":{"strengths":["calm"],"overallScore":80,"avatarScript":"Nice work"}}`)
	require.Equal(t, fiber.StatusOK, status)
	session := body["session"].(map[string]any)
	assert.Equal(t, "Nice work", session["avatar_script"])
	id := int64(session["id"].(float64))
	require.NotZero(t, id)

	_, body = e.doJSON(t, "GET", "/api/coaching/sessions?agent_id=agent_001", "")
	assert.EqualValues(t, 1, body["count"])

	status, _ = e.doJSON(t, "POST", "/api/coaching/sessions/"+jsonInt(id)+"/complete", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = e.doJSON(t, "POST", "/api/coaching/sessions/999/complete", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = e.doJSON(t, "POST", "/api/coaching/sessions/abc/complete", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestGenerateCoaching(t *testing.T) {
	e := newEnv(t)
	e.coach.feedback = model.CoachingFeedback{Strengths: []string{"patient"}, OverallScore: 88}

	status, body := e.doJSON(t, "POST", "/api/coaching/generate", `{"callId":"cc_1","transcript":"\nAgent: hi","agentId":"agent_001"}`)
	require.Equal(t, fiber.StatusOK, status)
	session := body["coachingSession"].(map[string]any)
	assert.True(t, strings.HasPrefix(session["id"].(string), "coaching_"))
	assert.EqualValues(t, 88, session["feedback"].(map[string]any)["overallScore"])
	assert.Equal(t, false, session["completed"])

	status, _ = e.doJSON(t, "POST", "/api/coaching/generate", `{"callId":"cc_1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	e.coach.err = errors.New("model overloaded")
	status, body = e.doJSON(t, "POST", "/api/coaching/generate", `{"transcript":"x"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Failed to generate coaching session", body["error"])
}

func TestCallInsights(t *testing.T) {
	e := newEnv(t)

	status, body := e.doJSON(t, "POST", "/api/calls/insights", `{"callId":"cc_1","currentTranscript":"\nCustomer: my order is late"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cc_1", body["callId"])
	assert.Equal(t, "medium", body["insights"].(map[string]any)["urgency"])

	status, _ = e.doJSON(t, "POST", "/api/calls/insights", `{"callId":"cc_1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestDialCall(t *testing.T) {
	e := newEnv(t)
	status, _ := e.doJSON(t, "POST", "/api/calls", `{"to":"+15550003"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	dialer := &fakeDialer{}
	e = newEnv(t, func(d *handlers.Deps, _ *handlers.Options) { d.Dialer = dialer })
	status, body := e.doJSON(t, "POST", "/api/calls", `{"to":"+15550003"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "CA_out", body["sid"])
	assert.Equal(t, []string{"+15550003"}, dialer.to)

	status, _ = e.doJSON(t, "POST", "/api/calls", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestInitEndpoints(t *testing.T) {
	e := newEnv(t)
	status, body := e.doJSON(t, "GET", "/api/init", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["isInitialized"])
	assert.Equal(t, "healthy", body["connection"])

	status, body = e.doJSON(t, "POST", "/api/init", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Database initialized successfully", body["message"])
}

func TestAgentTokenGuard(t *testing.T) {
	e := newEnv(t, func(d *handlers.Deps, o *handlers.Options) {
		d.Issuer = auth.NewIssuer("secret", time.Hour)
		o.AgentPasscode = "1234"
	})

	status, _ := e.doJSON(t, "GET", "/api/calls/history", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	for _, target := range []string{"/api/transcripts/state", "/api/transcripts/cc_1", "/api/transcripts/stream", "/api/init"} {
		status, _ = e.doJSON(t, "GET", target, "")
		assert.Equal(t, fiber.StatusUnauthorized, status, target)
	}
	status, _ = e.doJSON(t, "POST", "/api/init", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = e.doJSON(t, "POST", "/api/auth/token", `{"agentId":"agent_9","passcode":"nope"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := e.doJSON(t, "POST", "/api/auth/token", `{"agentId":"agent_9","passcode":"1234"}`)
	require.Equal(t, fiber.StatusOK, status)
	token := body["token"].(string)

	status, body = e.doJSON(t, "GET", "/api/calls/history", "", "Authorization", "Bearer "+token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])

	status, _ = e.doJSON(t, "GET", "/api/init?token="+token, "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = e.doJSON(t, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAgentTokenPinsListedAgent(t *testing.T) {
	e := newEnv(t, func(d *handlers.Deps, o *handlers.Options) {
		d.Issuer = auth.NewIssuer("secret", time.Hour)
		o.AgentPasscode = "1234"
	})
	ctx := context.Background()
	_, err := e.store.UpsertCall(ctx, model.Call{CallControlID: "cc_mine", AgentID: "agent_9", Status: "completed"})
	require.NoError(t, err)
	_, err = e.store.UpsertCall(ctx, model.Call{CallControlID: "cc_other", AgentID: "agent_7", Status: "completed"})
	require.NoError(t, err)

	_, body := e.doJSON(t, "POST", "/api/auth/token", `{"agentId":"agent_9","passcode":"1234"}`)
	bearer := "Bearer " + body["token"].(string)

	status, body := e.doJSON(t, "GET", "/api/calls/history?agent_id=agent_7", "", "Authorization", bearer)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	first := body["calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "cc_mine", first["call_control_id"])

	status, body = e.doJSON(t, "GET", "/api/coaching/sessions?agent_id=agent_7", "", "Authorization", bearer)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestAgentTokensDisabled(t *testing.T) {
	e := newEnv(t)
	status, _ := e.doJSON(t, "POST", "/api/auth/token", `{"agentId":"agent_9","passcode":"1234"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
}
