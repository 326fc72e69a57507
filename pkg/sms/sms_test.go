package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestAWSSNSProvider_Send(t *testing.T) {
	client := &fakeSNS{}
	p := NewAWSSNSProviderWithClient(client, "GuardShift")

	res, err := p.Send(context.Background(), &Message{To: "+15551234567", Body: "New shift"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.MessageID)

	assert.Equal(t, "+15551234567", aws.ToString(client.input.PhoneNumber))
	assert.Equal(t, "New shift", aws.ToString(client.input.Message))
	assert.Equal(t, "Transactional", aws.ToString(client.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "GuardShift", aws.ToString(client.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestAWSSNSProvider_SendError(t *testing.T) {
	p := NewAWSSNSProviderWithClient(&fakeSNS{err: errors.New("throttled")}, "")

	_, err := p.Send(context.Background(), &Message{To: "+15551234567", Body: "x"})
	assert.ErrorContains(t, err, "throttled")
}

func TestTwilioParams(t *testing.T) {
	p := NewTwilioProvider("AC123", "secret", "+15550001111")
	params := p.params(&Message{To: "+15551234567", Body: "hello"})

	assert.Equal(t, "+15551234567", *params.To)
	assert.Equal(t, "+15550001111", *params.From)
	assert.Equal(t, "hello", *params.Body)
}
