package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"release-ingest/internal/audit"
	"release-ingest/internal/config"
	"release-ingest/internal/deadletter"
	"release-ingest/internal/fetch"
	"release-ingest/internal/notify"
	"release-ingest/internal/pipeline"
	"release-ingest/internal/storage"
)

// buildPipeline constructs the clients for one invocation. The returned
// release func closes everything that holds connections.
func buildPipeline(ctx context.Context, settings config.Settings, logger *slog.Logger) (runner, func(), error) {
	store, err := newObjectStore(ctx, settings)
	if err != nil {
		return nil, nil, err
	}
	storer := storage.NewStorer(
		store,
		storage.NewKeyGenerator(settings.ObjectKeyPrefix, settings.ObjectKeyRandom),
		settings.SignedURLEnabled,
		settings.SignedURLTTL,
	)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	httpClient := &http.Client{Transport: transport}

	release := func() {
		transport.CloseIdleConnections()
		if err := storer.Close(); err != nil {
			logger.Warn("failed to release storage client", "error", err)
		}
	}

	sender, err := notify.NewSESSender(settings.AWSConfig, settings.SESFromEmail)
	if err != nil {
		release()
		return nil, nil, err
	}

	db := audit.NewDynamoClient(settings.AWSConfig, settings.DynamoDBEndpoint)
	cfg := pipeline.Config{
		Fetcher:  fetch.New(httpClient, settings.MaxArtifactBytes),
		Storer:   storer,
		Notifier: notify.New(sender),
		Auditor:  audit.NewWriter(db, settings.DynamoDBTableName),
		Timeouts: pipeline.Timeouts{
			Fetch:  settings.FetchTimeout,
			Store:  settings.StoreTimeout,
			Notify: settings.NotifyTimeout,
			Audit:  settings.AuditTimeout,
		},
		MaxAttempts: settings.RetryMaxAttempts,
		Logger:      logger,
	}
	if settings.IdempotencyTableName != "" {
		cfg.Claims = audit.NewClaims(db, settings.IdempotencyTableName, settings.ClaimLease)
	}
	if settings.DeadLetterQueueURL != "" {
		cfg.DeadLetters = deadletter.NewQueue(sqs.NewFromConfig(settings.AWSConfig), settings.DeadLetterQueueURL)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

func newObjectStore(ctx context.Context, settings config.Settings) (storage.ObjectStore, error) {
	switch settings.StorageBackend {
	case config.BackendGCS:
		return storage.NewGCSStore(ctx, settings.Bucket, settings.GCPProject, settings.GCPCredentialsJSON)
	case config.BackendS3:
		return storage.NewS3Store(settings.AWSConfig, settings.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", settings.StorageBackend)
	}
}
