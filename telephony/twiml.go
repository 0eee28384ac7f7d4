// Package telephony talks to the TeXML / TwiML voice provider: it renders
// call instructions, places and redirects calls and checks webhook signatures.
package telephony

import (
	"github.com/pkg/errors"
	"github.com/twilio/twilio-go/twiml"
)

// Media stream track selection.
const TrackBoth = "both_tracks"

// InboundOptions controls the instructions returned for an answered call.
type InboundOptions struct {
	// StreamURL receives live call audio. Empty disables streaming.
	StreamURL string
	// TranscriptionCallback receives the recording transcription.
	TranscriptionCallback string
}

// InboundResponse starts the optional media stream and records the call with
// transcription.
func InboundResponse(opts InboundOptions) (string, error) {
	var elements []twiml.Element
	if opts.StreamURL != "" {
		elements = append(elements, &twiml.VoiceStart{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: opts.StreamURL, Track: TrackBoth},
			},
		})
	}

	record := &twiml.VoiceRecord{PlayBeep: "false"}
	if opts.TranscriptionCallback != "" {
		record.OptionalAttributes = map[string]string{
			"transcription":         "true",
			"transcriptionEngine":   "A",
			"transcriptionCallback": opts.TranscriptionCallback,
		}
	}
	elements = append(elements, record)

	doc, err := twiml.Voice(elements)
	return doc, errors.Wrap(err, "render inbound response")
}

// TransferResponse bridges the call to a SIP endpoint and asks for a status
// callback once the endpoint answers.
func TransferResponse(sipURI, statusCallback string) (string, error) {
	if sipURI == "" {
		return "", errors.New("transfer target is empty")
	}
	sip := &twiml.VoiceSip{SipUrl: sipURI}
	if statusCallback != "" {
		sip.StatusCallback = statusCallback
		sip.StatusCallbackEvent = "answered"
		sip.StatusCallbackMethod = "POST"
	}
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceDial{InnerElements: []twiml.Element{sip}},
	})
	return doc, errors.Wrap(err, "render transfer response")
}

// SayResponse speaks text and nothing else.
func SayResponse(text string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{&twiml.VoiceSay{Message: text}})
	return doc, errors.Wrap(err, "render say response")
}
