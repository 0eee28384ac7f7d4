package handlers

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/call"
	"github.com/mrsingh-rishi/callcoach/output"
)

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// transcriptStream subscribes the client to the relay as a server-sent event
// stream.
func (a *API) transcriptStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowHeaders, fiber.HeaderCacheControl)

	sink := output.NewSSESink(a.sinkOptions()...)
	a.deps.Relay.AddConnection(sink)
	log := a.logger.With(zap.String("sink_id", sink.ID()))
	log.Debug("sse client connected")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			a.deps.Relay.RemoveConnection(sink)
			_ = sink.Close()
			log.Debug("sse client disconnected")
		}()
		if err := sink.Serve(a.ctx, w); err != nil {
			log.Debug("sse stream ended", zap.Error(err))
		}
	}))
	return nil
}

// transcriptSocket is the WebSocket flavour of the transcript stream.
func (a *API) transcriptSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sink := output.NewWebSocketSink(conn, a.sinkOptions()...)
		a.deps.Relay.AddConnection(sink)
		log := a.logger.With(zap.String("sink_id", sink.ID()))

		ctx, cancel := context.WithCancel(a.ctx)
		defer cancel()

		// the client never sends anything useful; reading notices it leaving
		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if err := sink.Serve(ctx); err != nil {
			log.Debug("websocket stream ended", zap.Error(err))
		}
		a.deps.Relay.RemoveConnection(sink)
		_ = sink.Close()
		_ = conn.Close()
		<-readerDone
	})
}

// mediaStream receives provider call audio for live transcription.
func (a *API) mediaStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()
		if a.deps.StreamDialer == nil {
			a.logger.Warn("media stream refused, live transcription is disabled")
			return
		}
		ms := call.NewMediaStream(conn, a.deps.StreamDialer, a.deps.Relay, a.logger)
		if err := ms.Run(a.ctx); err != nil {
			a.logger.Warn("media stream ended", zap.String("call_id", ms.CallID()), zap.Error(err))
		}
	})
}

func (a *API) relayState(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "state": a.deps.Relay.State()})
}
