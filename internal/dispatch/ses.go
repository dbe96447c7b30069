package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// SESAPI is the part of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers messages through Amazon SES v2.
type SESSender struct {
	client           SESAPI
	configurationSet string
}

// NewSESSender loads the default AWS configuration for region and creates a sender.
// Credentials come from the usual AWS environment and profile chain.
func NewSESSender(ctx context.Context, region, configurationSet string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(cfg), configurationSet), nil
}

// NewSESSenderWithClient creates a sender over an existing client.
func NewSESSenderWithClient(client SESAPI, configurationSet string) *SESSender {
	return &SESSender{client: client, configurationSet: configurationSet}
}

// Send submits one message. SES rejecting the message is a bounce; other errors are
// failures.
func (s *SESSender) Send(ctx context.Context, m *Message) error {
	from := m.FromEmail
	if m.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: []string{m.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(m.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(m.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if m.CampaignID != "" {
		input.EmailTags = []sestypes.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(m.CampaignID)},
		}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return &SendError{Kind: classifySESError(err), Stage: "ses", Cause: err}
	}
	return nil
}

func classifySESError(err error) ErrorKind {
	var rejected *sestypes.MessageRejected
	if errors.As(err, &rejected) {
		return KindBounced
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "MessageRejected" {
		return KindBounced
	}
	return KindFailed
}
