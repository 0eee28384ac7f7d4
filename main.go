package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/auth"
	"github.com/mrsingh-rishi/callcoach/call"
	"github.com/mrsingh-rishi/callcoach/config"
	"github.com/mrsingh-rishi/callcoach/handlers"
	"github.com/mrsingh-rishi/callcoach/llm"
	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/relay"
	"github.com/mrsingh-rishi/callcoach/store"
	"github.com/mrsingh-rishi/callcoach/stt"
	"github.com/mrsingh-rishi/callcoach/telephony"
	"github.com/mrsingh-rishi/callcoach/trace"
	"github.com/mrsingh-rishi/callcoach/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	l, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	logger.SetBase(l)
	defer func() { _ = l.Sync() }()

	ctx := context.Background()

	tcfg := trace.DefaultConfig()
	tcfg.Exporter = cfg.TraceExporter
	tcfg.Environment = cfg.Environment
	shutdownTracing, err := trace.Initialize(ctx, tcfg)
	if err != nil {
		l.Fatal("tracing init failed", zap.Error(err))
	}

	db, err := store.Open(ctx, cfg.DatabasePath, l)
	if err != nil {
		l.Fatal("database open failed", zap.Error(err))
	}
	if err := db.Init(ctx); err != nil {
		l.Fatal("database init failed", zap.Error(err))
	}

	live := relay.New(relay.WithLogger(l))

	coach := llm.NewCoach(llm.Config{
		APIKey:        cfg.LLMAPIKey,
		BaseURL:       cfg.LLMBaseURL,
		Model:         cfg.LLMModel,
		InsightsModel: cfg.LLMInsightsModel,
		Timeout:       cfg.LLMTimeout,
	}, l)

	coaching, err := workers.NewCoachingWorker(coach, db, cfg.CoachingQueueSize, l)
	if err != nil {
		l.Fatal("coaching worker", zap.Error(err))
	}
	coaching.Start()

	ingressOpts := []call.Option{call.WithLogger(l), call.WithDefaultAgent(cfg.DefaultAgentID)}
	deps := handlers.Deps{
		Store:  db,
		Relay:  live,
		Coach:  coach,
		Issuer: auth.NewIssuer(cfg.AuthSecret, cfg.TokenTTL),
	}

	var phone *telephony.Client
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		phone = telephony.NewClient(telephony.ClientConfig{
			AccountSID:     cfg.AccountSID,
			AuthToken:      cfg.AuthToken,
			FromNumber:     cfg.FromNumber,
			BaseURL:        cfg.PublicBaseURL,
			TransferSIPURI: cfg.TransferSIPURI,
			TransferDelay:  cfg.TransferDelay,
		}, l)
		deps.Dialer = phone
		ingressOpts = append(ingressOpts, call.WithTransferrer(phone))
	}
	if cfg.ValidateSignature {
		deps.Validator = telephony.NewValidator(cfg.AuthToken, cfg.PublicBaseURL)
	}
	if cfg.LiveTranscription() {
		sttCfg := stt.Config{APIKey: cfg.DeepgramAPIKey, Endpoint: cfg.DeepgramEndpoint}
		deps.StreamDialer = func(ctx context.Context, track string) (call.TranscriptStream, error) {
			dg, err := stt.Dial(ctx, sttCfg, track, l)
			if err != nil {
				return nil, err
			}
			return dg, nil
		}
	}
	deps.Ingress = call.NewIngress(db, live, coaching, ingressOpts...)

	api := handlers.New(deps, handlers.Options{
		PublicBaseURL:     cfg.PublicBaseURL,
		PublicWSURL:       cfg.PublicWSURL,
		DefaultAgentID:    cfg.DefaultAgentID,
		AgentPasscode:     cfg.AgentPasscode,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SinkBacklog:       cfg.SinkBacklog,
	}, l)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api.Register(app)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		l.Info("fiber server listening",
			zap.String("addr", addr),
			zap.Bool("live_transcription", cfg.LiveTranscription()),
			zap.Bool("agent_tokens", cfg.AuthSecret != ""))
		if err := app.Listen(addr); err != nil {
			l.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	l.Info("shutting down")

	api.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		l.Warn("server shutdown", zap.Error(err))
	}
	if phone != nil {
		phone.Stop()
	}
	coaching.Stop()
	if err := db.Close(); err != nil {
		l.Warn("database close", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		l.Warn("tracing shutdown", zap.Error(err))
	}
}
