package telephony

import (
	"errors"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type twilioValidator struct {
	rv twclient.RequestValidator
}

// NewTwilioValidator returns the production signature gate: HMAC over
// the full request URL plus the sorted form parameters, keyed with the
// account's auth token.
func NewTwilioValidator(authToken string) SignatureValidator {
	return &twilioValidator{rv: twclient.NewRequestValidator(authToken)}
}

func (v *twilioValidator) Validate(url string, params map[string]string, signature string) bool {
	return v.rv.Validate(url, params, signature)
}

type twilioDialer struct {
	client *twilio.RestClient
}

// NewTwilioDialer builds the outbound call client once; the bridge owns
// it for the process lifetime.
func NewTwilioDialer(accountSID, authToken string) Dialer {
	return &twilioDialer{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
	}
}

func (d *twilioDialer) CreateCall(to, from, voiceURL, statusCallbackURL string) (string, error) {
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(voiceURL)
	params.SetStatusCallback(statusCallbackURL)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return "", err
	}
	if resp.Sid == nil {
		return "", errors.New("provider returned no call sid")
	}
	return *resp.Sid, nil
}
