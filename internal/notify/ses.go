package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends email through Amazon SES.
type SESSender struct {
	client    SESAPI
	fromEmail string
}

// NewSESSender builds a sender from an AWS config.
func NewSESSender(cfg aws.Config, from string) (*SESSender, error) {
	return NewSESSenderWithClient(sesv2.NewFromConfig(cfg), from)
}

// NewSESSenderWithClient builds a sender around an existing client.
func NewSESSenderWithClient(client SESAPI, from string) (*SESSender, error) {
	if from == "" {
		return nil, fmt.Errorf("SES from address is not set")
	}
	return &SESSender{client: client, fromEmail: from}, nil
}

// Send delivers a plain text email through SES.
func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	return err
}
