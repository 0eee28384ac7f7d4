package telephony

import (
	"strings"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "X-Twilio-Signature"

// Validator checks that webhooks were signed with the account auth token.
type Validator struct {
	rv      client.RequestValidator
	baseURL string
}

func NewValidator(authToken, baseURL string) *Validator {
	return &Validator{
		rv:      client.NewRequestValidator(authToken),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Validate checks signature against the public URL of requestURI and the
// posted form parameters.
func (v *Validator) Validate(requestURI string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.rv.Validate(v.baseURL+requestURI, params, signature)
}
