// Package config loads service settings from the environment, reading a .env
// file first when one is present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds every setting the service reads at startup.
type Config struct {
	// Port is the HTTP listen port.
	Port string
	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string
	// Development switches logging to the console encoder.
	Development bool

	// DatabasePath is the sqlite file backing calls, transcripts and coaching.
	DatabasePath string

	// PublicBaseURL is the externally reachable https base of this service,
	// used for provider callbacks and signature validation.
	PublicBaseURL string
	// PublicWSURL is the externally reachable wss base for media streams.
	// Live transcription is off when it is empty.
	PublicWSURL string

	// Telephony provider (TeXML / TwiML compatible).
	AccountSID        string
	AuthToken         string
	FromNumber        string
	TransferSIPURI    string
	TransferDelay     time.Duration
	ValidateSignature bool

	// Chat-completion endpoint used for coaching and insights.
	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	LLMInsightsModel string
	LLMTimeout       time.Duration

	// Deepgram live transcription.
	DeepgramAPIKey   string
	DeepgramEndpoint string

	// Push channel.
	HeartbeatInterval time.Duration
	SinkBacklog       int

	// CoachingQueueSize bounds pending coaching jobs.
	CoachingQueueSize int
	// DefaultAgentID is used when an event does not identify the agent.
	DefaultAgentID string

	// AuthSecret enables agent tokens on the dashboard API when set.
	AuthSecret    string
	AgentPasscode string
	TokenTTL      time.Duration

	// TraceExporter is "stdout" or "none".
	TraceExporter string
	Environment   string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:              "3000",
		LogLevel:          "info",
		DatabasePath:      "callcoach.db",
		TransferDelay:     2 * time.Second,
		LLMBaseURL:        "https://api.telnyx.com/v2/ai",
		LLMModel:          "Qwen/Qwen3-235B-A22B",
		LLMInsightsModel:  "meta-llama/Llama-3.2-3B-Instruct",
		LLMTimeout:        60 * time.Second,
		DeepgramEndpoint:  "wss://api.deepgram.com/v1/listen?model=nova-2-phonecall&encoding=mulaw&sample_rate=8000&channels=1&language=en-US&punctuate=true&smart_format=true",
		HeartbeatInterval: 30 * time.Second,
		SinkBacklog:       64,
		CoachingQueueSize: 32,
		DefaultAgentID:    "agent_001",
		TokenTTL:          12 * time.Hour,
		TraceExporter:     "none",
		Environment:       "development",
	}
}

// Load reads .env (if any) and the process environment on top of Default.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	p.str(&cfg.Port, "PORT")
	p.str(&cfg.LogLevel, "LOG_LEVEL")
	p.boolean(&cfg.Development, "DEVELOPMENT")
	p.str(&cfg.DatabasePath, "DATABASE_PATH")

	p.str(&cfg.PublicBaseURL, "BASE_URL")
	p.str(&cfg.PublicWSURL, "BASE_WS_URL")

	p.str(&cfg.AccountSID, "TELNYX_ACCOUNT_SID")
	p.str(&cfg.AuthToken, "TELNYX_AUTH_TOKEN")
	p.str(&cfg.FromNumber, "TELNYX_FROM_NUMBER")
	p.str(&cfg.TransferSIPURI, "TRANSFER_SIP_URI")
	p.duration(&cfg.TransferDelay, "TRANSFER_DELAY")
	p.boolean(&cfg.ValidateSignature, "VALIDATE_SIGNATURE")

	p.str(&cfg.LLMAPIKey, "TELNYX_API_KEY")
	p.str(&cfg.LLMBaseURL, "LLM_BASE_URL")
	p.str(&cfg.LLMModel, "LLM_MODEL")
	p.str(&cfg.LLMInsightsModel, "LLM_INSIGHTS_MODEL")
	p.duration(&cfg.LLMTimeout, "LLM_TIMEOUT")

	p.str(&cfg.DeepgramAPIKey, "DEEPGRAM_API_KEY")
	p.str(&cfg.DeepgramEndpoint, "DEEPGRAM_ENDPOINT")

	p.duration(&cfg.HeartbeatInterval, "HEARTBEAT_INTERVAL")
	p.integer(&cfg.SinkBacklog, "SINK_BACKLOG")
	p.integer(&cfg.CoachingQueueSize, "COACHING_QUEUE_SIZE")
	p.str(&cfg.DefaultAgentID, "DEFAULT_AGENT_ID")

	p.str(&cfg.AuthSecret, "AUTH_SECRET")
	p.str(&cfg.AgentPasscode, "AGENT_PASSCODE")
	p.duration(&cfg.TokenTTL, "TOKEN_TTL")

	p.str(&cfg.TraceExporter, "TRACE_EXPORTER")
	p.str(&cfg.Environment, "ENVIRONMENT")

	if p.err != nil {
		return Config{}, p.err
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	cfg.PublicWSURL = strings.TrimRight(cfg.PublicWSURL, "/")
	return cfg, nil
}

// Validate reports settings that are missing or out of range.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must be set")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH must be set")
	}
	if c.LLMAPIKey == "" {
		return errors.New("TELNYX_API_KEY must be set")
	}
	if c.ValidateSignature && c.AuthToken == "" {
		return errors.New("VALIDATE_SIGNATURE requires TELNYX_AUTH_TOKEN")
	}
	if c.PublicWSURL != "" && c.DeepgramAPIKey == "" {
		return errors.New("BASE_WS_URL enables live transcription and requires DEEPGRAM_API_KEY")
	}
	if c.AuthSecret != "" && c.AgentPasscode == "" {
		return errors.New("AUTH_SECRET requires AGENT_PASSCODE")
	}
	if c.SinkBacklog <= 0 || c.CoachingQueueSize <= 0 {
		return errors.New("SINK_BACKLOG and COACHING_QUEUE_SIZE must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	switch c.TraceExporter {
	case "stdout", "none":
	default:
		return errors.Errorf("unsupported TRACE_EXPORTER %q", c.TraceExporter)
	}
	return nil
}

// LiveTranscription reports whether media streams are requested from the provider.
func (c Config) LiveTranscription() bool {
	return c.PublicWSURL != "" && c.DeepgramAPIKey != ""
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) lookup(key string) (string, bool) {
	v := strings.TrimSpace(p.getenv(key))
	return v, v != ""
}

func (p *parser) str(dst *string, key string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *parser) integer(dst *int, key string) {
	v, ok := p.lookup(key)
	if !ok || p.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = errors.Wrapf(err, "parse %s", key)
		return
	}
	*dst = n
}

func (p *parser) boolean(dst *bool, key string) {
	v, ok := p.lookup(key)
	if !ok || p.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = errors.Wrapf(err, "parse %s", key)
		return
	}
	*dst = b
}

func (p *parser) duration(dst *time.Duration, key string) {
	v, ok := p.lookup(key)
	if !ok || p.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = errors.Wrapf(err, "parse %s", key)
		return
	}
	*dst = d
}
