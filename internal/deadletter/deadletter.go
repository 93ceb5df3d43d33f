// Package deadletter parks audit records that could not be written.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"release-ingest/internal/models"
)

// SQSAPI is the subset of the SQS client used for publishing.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue publishes dead letters to an SQS queue.
type Queue struct {
	client   SQSAPI
	queueURL string
}

// NewQueue returns a Queue for queueURL.
func NewQueue(client SQSAPI, queueURL string) *Queue {
	return &Queue{client: client, queueURL: queueURL}
}

// Publish enqueues the dead letter.
func (q *Queue) Publish(ctx context.Context, letter models.DeadLetter) error {
	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("enqueue dead letter: %w", err)
	}
	return nil
}

// Decode parses a dead letter message body.
func Decode(body string) (models.DeadLetter, error) {
	var letter models.DeadLetter
	if err := json.Unmarshal([]byte(body), &letter); err != nil {
		return models.DeadLetter{}, fmt.Errorf("invalid dead letter body: %w", err)
	}
	if letter.Record.Email == "" || letter.Record.FileName == "" {
		return models.DeadLetter{}, fmt.Errorf("invalid dead letter body: email and fileName are required")
	}
	return letter, nil
}
