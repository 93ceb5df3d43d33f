package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"release-ingest/internal/config"
	"release-ingest/internal/envelope"
	"release-ingest/internal/logging"
	"release-ingest/internal/models"
	"release-ingest/internal/pipeline"
)

func main() {
	h := &handler{load: config.Load, build: buildPipeline}
	lambda.Start(h.handleSNSEvent)
}

// runner is the part of *pipeline.Pipeline the handler needs.
type runner interface {
	Run(ctx context.Context, msg envelope.Message) (models.Result, error)
}

type handler struct {
	load  func(ctx context.Context) (config.Settings, error)
	build func(ctx context.Context, settings config.Settings, logger *slog.Logger) (runner, func(), error)
}

func (h *handler) handleSNSEvent(ctx context.Context, event events.SNSEvent) (models.Result, error) {
	settings, err := h.load(ctx)
	if err != nil {
		logging.ForInvocation(ctx, slog.Default()).Error("configuration error", "error", err)
		return failure(), nil
	}
	logger := logging.ForInvocation(ctx, logging.New(settings.LogLevel))

	p, release, err := h.build(ctx, settings, logger)
	if err != nil {
		logger.Error("failed to initialise pipeline", "error", err)
		return failure(), nil
	}
	defer release()

	result := models.Result{StatusCode: http.StatusOK, Body: models.BodySuccess}
	var errs []error
	for _, msg := range envelope.Records(event) {
		res, err := p.Run(ctx, msg)
		if err != nil {
			logger.Error("audit record lost", "message_id", msg.ID, "error", err)
			errs = append(errs, err)
		}
		if res.StatusCode != http.StatusOK || result.StatusCode == http.StatusOK {
			result = res
		}
	}
	return result, errors.Join(errs...)
}

func failure() models.Result {
	return models.Result{StatusCode: http.StatusInternalServerError, Body: models.BodyFailure}
}

var _ runner = (*pipeline.Pipeline)(nil)
