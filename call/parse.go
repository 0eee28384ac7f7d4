package call

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/callcoach/types"
)

// Kind is the webhook flavour detected by Classify.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindCallStatus    Kind = "call-status"
	KindInbound       Kind = "inbound"
	KindGeneric       Kind = "generic"
)

// Classify picks the handler for a webhook posted to the generic endpoint.
func Classify(fields map[string]string) Kind {
	switch {
	case fields["TranscriptionText"] != "" || fields["transcript_text"] != "":
		return KindTranscription
	case fields["CallStatus"] != "":
		return KindCallStatus
	case fields["CallSid"] != "":
		return KindInbound
	default:
		return KindGeneric
	}
}

// IsXML reports whether a content type carries an XML body.
func IsXML(contentType string) bool {
	return strings.Contains(contentType, "xml")
}

// ParseFields flattens a webhook body into string fields. JSON objects,
// XML documents and form bodies are understood; anything else is kept whole
// under "rawText".
func ParseFields(contentType string, body []byte) (map[string]string, error) {
	switch {
	case strings.Contains(contentType, "application/json"):
		return jsonFields(body)
	case IsXML(contentType):
		return xmlFields(body)
	case strings.Contains(contentType, "application/x-www-form-urlencoded"), contentType == "":
		return formFields(body)
	default:
		return map[string]string{"rawText": string(body)}, nil
	}
}

func formFields(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse form body")
	}
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}

func jsonFields(body []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "parse json body")
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		// numbers, booleans and nested values keep their JSON text
		fields[k] = string(v)
	}
	return fields, nil
}

// xmlFields collects the text of every leaf element. The first occurrence of
// a name wins.
func xmlFields(body []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	fields := make(map[string]string)

	var (
		current string
		text    strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return fields, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse xml body")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			text.Reset()
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if current == t.Name.Local {
				if _, seen := fields[current]; !seen {
					fields[current] = strings.TrimSpace(text.String())
				}
			}
			current = ""
			text.Reset()
		}
	}
}

// StatusFromFields builds a status callback from parsed fields.
func StatusFromFields(fields map[string]string) types.CallStatus {
	s := types.CallStatus{
		CallSid:       firstOf(fields, "CallSid", "call_control_id", "call_session_id"),
		ParentCallSid: fields["ParentCallSid"],
		Status:        fields["CallStatus"],
		RecordingURL:  fields["RecordingUrl"],
		From:          fields["From"],
		To:            fields["To"],
		Direction:     fields["Direction"],
		StartTime:     fields["StartTime"],
		EndTime:       fields["EndTime"],
		AccountSid:    fields["AccountSid"],
	}
	if d, err := strconv.Atoi(strings.TrimSpace(fields["CallDuration"])); err == nil {
		s.Duration = d
	}
	if ts, ok := parseTimestamp(fields["timestamp"]); ok {
		s.Timestamp = ts
	}
	return s
}

// TranscriptionFromFields builds a recording transcription from parsed fields.
func TranscriptionFromFields(fields map[string]string) types.RecordingTranscription {
	return types.RecordingTranscription{
		CallSid:          firstOf(fields, "CallSid", "CallSidLegacy", "call_control_id"),
		Transcript:       firstOf(fields, "TranscriptionText", "transcript_text"),
		RecordingURL:     fields["RecordingUrl"],
		CallStatus:       fields["CallStatus"],
		From:             fields["From"],
		To:               fields["To"],
		TranscriptionSid: fields["TranscriptionSid"],
		AccountSid:       fields["AccountSid"],
	}
}
