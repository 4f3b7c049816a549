package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/checklinehq/checkline/pkg/errorsx"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound calls through the Twilio REST API.
type Dialer struct {
	accountSID string
	authToken  string
	from       string
	client     callCreator
}

// NewDialer creates a dialer with the account's default caller number.
func NewDialer(accountSID, authToken, from string) *Dialer {
	return &Dialer{accountSID: accountSID, authToken: authToken, from: from}
}

// Dial places an outbound call that fetches its call flow from voiceURL and
// returns the provider call SID.
func (d *Dialer) Dial(ctx context.Context, to, voiceURL string) (string, error) {
	_ = ctx
	if to == "" || d.from == "" {
		return "", errorsx.Wrap(errors.New("to/from required"), errorsx.ReasonDialFailed)
	}
	if d.accountSID == "" || d.authToken == "" {
		return "", errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonDialFailed)
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.accountSID,
			Password: d.authToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.from)
	params.SetUrl(voiceURL)
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("create call: %w", err), errorsx.ReasonDialFailed)
	}
	if resp == nil || resp.Sid == nil {
		return "", errorsx.Wrap(fmt.Errorf("missing call sid"), errorsx.ReasonDialFailed)
	}
	return *resp.Sid, nil
}
