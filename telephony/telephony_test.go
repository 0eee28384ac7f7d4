package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu      sync.Mutex
	created []*openapi.CreateCallParams
	updated map[string]*openapi.UpdateCallParams
	err     error
}

func (f *fakeAPI) CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	sid := "CA0001"
	return &openapi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeAPI) UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.updated == nil {
		f.updated = make(map[string]*openapi.UpdateCallParams)
	}
	f.updated[sid] = params
	return &openapi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeAPI) update(sid string) (*openapi.UpdateCallParams, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.updated[sid]
	return p, ok
}

func testConfig() ClientConfig {
	return ClientConfig{
		AccountSID:     "AC123",
		AuthToken:      "secret",
		FromNumber:     "+15550000",
		BaseURL:        "https://coach.example.com/",
		TransferSIPURI: "sip:agent@sip.example.com",
		TransferDelay:  10 * time.Millisecond,
	}
}

func TestInboundResponse(t *testing.T) {
	doc, err := InboundResponse(InboundOptions{
		StreamURL:             "wss://coach.example.com/api/media-stream",
		TranscriptionCallback: "https://coach.example.com/api/webhooks/telnyx/transcription",
	})
	require.NoError(t, err)
	assert.Contains(t, doc, "<Response>")
	assert.Contains(t, doc, "<Start>")
	assert.Contains(t, doc, `url="wss://coach.example.com/api/media-stream"`)
	assert.Contains(t, doc, `track="both_tracks"`)
	assert.Contains(t, doc, "<Record")
	assert.Contains(t, doc, `playBeep="false"`)
	assert.Contains(t, doc, `transcriptionEngine="A"`)
	assert.Contains(t, doc, `transcriptionCallback="https://coach.example.com/api/webhooks/telnyx/transcription"`)

	doc, err = InboundResponse(InboundOptions{})
	require.NoError(t, err)
	assert.NotContains(t, doc, "<Stream")
	assert.Contains(t, doc, "<Record")
}

func TestTransferResponse(t *testing.T) {
	doc, err := TransferResponse("sip:agent@sip.example.com", "https://coach.example.com/api/webhooks/telnyx/call-status")
	require.NoError(t, err)
	assert.Contains(t, doc, "<Dial>")
	assert.Contains(t, doc, "sip:agent@sip.example.com</Sip>")
	assert.Contains(t, doc, `statusCallbackEvent="answered"`)
	assert.Contains(t, doc, `statusCallbackMethod="POST"`)

	_, err = TransferResponse("", "")
	assert.Error(t, err)
}

func TestSayResponse(t *testing.T) {
	doc, err := SayResponse("Call status received.")
	require.NoError(t, err)
	assert.Contains(t, doc, "<Say>Call status received.</Say>")
}

func TestDial(t *testing.T) {
	api := &fakeAPI{}
	c := NewClientWithAPI(api, testConfig(), zap.NewNop())

	sid, err := c.Dial("+15551234")
	require.NoError(t, err)
	assert.Equal(t, "CA0001", sid)

	require.Len(t, api.created, 1)
	p := api.created[0]
	assert.Equal(t, "+15551234", *p.To)
	assert.Equal(t, "+15550000", *p.From)
	assert.Equal(t, "https://coach.example.com/api/webhooks/telnyx/inbound", *p.Url)
	assert.Equal(t, "https://coach.example.com/api/webhooks/telnyx/call-status", *p.StatusCallback)

	_, err = c.Dial("")
	assert.Error(t, err)

	api.err = errors.New("rejected")
	_, err = c.Dial("+15551234")
	assert.Error(t, err)
}

func TestScheduleTransfer(t *testing.T) {
	api := &fakeAPI{}
	c := NewClientWithAPI(api, testConfig(), zap.NewNop())

	c.ScheduleTransfer("CA777")
	assert.Eventually(t, func() bool {
		_, ok := api.update("CA777")
		return ok
	}, time.Second, 5*time.Millisecond)

	p, _ := api.update("CA777")
	require.NotNil(t, p.Twiml)
	assert.Contains(t, *p.Twiml, "sip:agent@sip.example.com")
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduleTransferCancelled(t *testing.T) {
	api := &fakeAPI{}
	cfg := testConfig()
	cfg.TransferDelay = time.Hour
	c := NewClientWithAPI(api, cfg, zap.NewNop())

	c.ScheduleTransfer("CA1")
	c.ScheduleTransfer("CA1")
	assert.Equal(t, 1, c.Pending())
	c.Stop()
	assert.Equal(t, 0, c.Pending())

	cfg.TransferSIPURI = ""
	c = NewClientWithAPI(api, cfg, zap.NewNop())
	c.ScheduleTransfer("CA2")
	assert.Equal(t, 0, c.Pending())
}

func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := url
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidator(t *testing.T) {
	v := NewValidator("secret", "https://coach.example.com/")
	params := map[string]string{"CallSid": "CA1", "CallStatus": "completed"}
	sig := sign("secret", "https://coach.example.com/api/webhooks/telnyx/call-status", params)

	assert.True(t, v.Validate("/api/webhooks/telnyx/call-status", params, sig))
	assert.False(t, v.Validate("/api/webhooks/telnyx/call-status", params, ""))
	assert.False(t, v.Validate("/api/webhooks/telnyx/call-status", map[string]string{"CallSid": "CA2"}, sig))
}
