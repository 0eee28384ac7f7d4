package telephony

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
)

// Webhook paths the provider is pointed at.
const (
	InboundPath       = "/api/webhooks/telnyx/inbound"
	StatusPath        = "/api/webhooks/telnyx/call-status"
	TranscriptionPath = "/api/webhooks/telnyx/transcription"
	MediaStreamPath   = "/api/media-stream"
)

// CallAPI is the part of the provider REST API the service uses.
type CallAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// ClientConfig configures the provider client.
type ClientConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL is the public https base of this service.
	BaseURL        string
	TransferSIPURI string
	TransferDelay  time.Duration
}

// Client places outbound calls and redirects live calls.
type Client struct {
	api    CallAPI
	cfg    ClientConfig
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewClient builds a client on the provider REST API.
func NewClient(cfg ClientConfig, l *zap.Logger) *Client {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewClientWithAPI(rc.Api, cfg, l)
}

// NewClientWithAPI builds a client on an existing API implementation.
func NewClientWithAPI(api CallAPI, cfg ClientConfig, l *zap.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		api:    api,
		cfg:    cfg,
		logger: logger.Or(l).Named("telephony"),
		timers: make(map[string]*time.Timer),
	}
}

// URL joins path to the public base URL.
func (c *Client) URL(path string) string {
	return c.cfg.BaseURL + path
}

// Dial places an outbound call to the given number. The provider fetches its
// instructions from the inbound webhook once the callee answers.
func (c *Client) Dial(to string) (string, error) {
	if to == "" {
		return "", errors.New("destination number is required")
	}
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.cfg.FromNumber)
	params.SetUrl(c.URL(InboundPath))
	params.SetMethod("POST")
	params.SetStatusCallback(c.URL(StatusPath))
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetStatusCallbackMethod("POST")

	resp, err := c.api.CreateCall(params)
	if err != nil {
		return "", errors.Wrapf(err, "create call to %s", to)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("provider returned no call sid")
	}
	c.logger.Info("outbound call created", zap.String("call_sid", *resp.Sid))
	return *resp.Sid, nil
}

// Transfer replaces the instructions of a live call with a SIP dial to the
// configured agent endpoint.
func (c *Client) Transfer(callSid string) error {
	doc, err := TransferResponse(c.cfg.TransferSIPURI, c.URL(StatusPath))
	if err != nil {
		return err
	}
	params := &openapi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := c.api.UpdateCall(callSid, params); err != nil {
		return errors.Wrapf(err, "transfer call %s", callSid)
	}
	c.logger.Info("call transferred", zap.String("call_sid", callSid))
	return nil
}

// ScheduleTransfer transfers callSid after the configured delay, giving the
// provider time to start the recording first. A second schedule for the same
// call replaces the first. Nothing happens without a transfer target.
func (c *Client) ScheduleTransfer(callSid string) {
	if c.cfg.TransferSIPURI == "" || callSid == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[callSid]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.cfg.TransferDelay, func() {
		c.mu.Lock()
		if c.timers[callSid] == timer {
			delete(c.timers, callSid)
		}
		c.mu.Unlock()

		if err := c.Transfer(callSid); err != nil {
			c.logger.Error("scheduled transfer failed", zap.String("call_sid", callSid), zap.Error(err))
		}
	})
	c.timers[callSid] = timer
}

// Pending reports how many transfers are scheduled.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels every scheduled transfer.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sid, t := range c.timers {
		t.Stop()
		delete(c.timers, sid)
	}
}
