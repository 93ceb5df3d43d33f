package main

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"release-ingest/internal/audit"
	"release-ingest/internal/config"
	"release-ingest/internal/deadletter"
	"release-ingest/internal/logging"
	"release-ingest/internal/models"
)

func main() {
	lambda.Start(handleSQSEvent)
}

func handleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	settings, err := config.LoadWorker(ctx)
	if err != nil {
		slog.Error("configuration error", "error", err)
		return events.SQSEventResponse{}, err
	}
	logger := logging.ForInvocation(ctx, logging.New(settings.LogLevel))
	db := audit.NewDynamoClient(settings.AWSConfig, settings.DynamoDBEndpoint)
	return replayBatch(ctx, audit.NewWriter(db, settings.DynamoDBTableName), event, logger), nil
}

// replayer is the part of *audit.Writer the worker needs.
type replayer interface {
	Replay(ctx context.Context, record models.AuditRecord) (bool, error)
}

// replayBatch writes each dead-lettered audit record, reporting the messages
// that should be redelivered. Undecodable bodies are dropped.
func replayBatch(ctx context.Context, w replayer, event events.SQSEvent, logger *slog.Logger) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		letter, err := deadletter.Decode(record.Body)
		if err != nil {
			logger.Error("dropping dead letter", "message_id", record.MessageId, "error", err)
			continue
		}

		written, err := w.Replay(ctx, letter.Record)
		if err != nil {
			logger.Error("replay failed", "message_id", record.MessageId, "email", letter.Record.Email,
				"file_name", letter.Record.FileName, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		if !written {
			logger.Info("duplicate detected", "email", letter.Record.Email, "file_name", letter.Record.FileName)
			continue
		}
		logger.Info("audit record replayed", "email", letter.Record.Email, "file_name", letter.Record.FileName,
			"status", letter.Record.Status, "reason", letter.Reason)
	}
	return resp
}
