package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioProvider{
		client:     client,
		fromNumber: fromNumber,
	}
}

func (t *TwilioProvider) Send(ctx context.Context, message *Message) (*Result, error) {
	resp, err := t.client.Api.CreateMessage(t.params(message))
	if err != nil {
		return nil, fmt.Errorf("twilio send failed: %w", err)
	}

	result := &Result{Status: "queued"}
	if resp.Sid != nil {
		result.MessageID = *resp.Sid
	}
	if resp.Status != nil {
		result.Status = string(*resp.Status)
	}
	return result, nil
}

func (t *TwilioProvider) params(message *Message) *api.CreateMessageParams {
	params := &api.CreateMessageParams{}
	params.SetTo(message.To)
	params.SetFrom(t.fromNumber)
	params.SetBody(message.Body)
	return params
}
